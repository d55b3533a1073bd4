package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"os"
)

const (
	BackendURL = "http://localhost:8080"
	TestUser   = "testuser"
	TestPass   = "Test123456"
)

// Проверка состояния
func testHealth() error {
	fmt.Println("\n[TEST] Testing /api/health...")
	resp, err := http.Get(BackendURL + "/api/health")
	if err != nil {
		return fmt.Errorf("health check failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("✓ Health check: %s\n", string(body))
	return nil
}

// Проверка регистрации
func testRegister() error {
	fmt.Println("\n[TEST] Testing /api/auth/register...")

	data := map[string]string{
		"username": TestUser,
		"password": TestPass,
		"confirm":  TestPass,
	}

	jsonData, _ := json.Marshal(data)
	resp, err := http.Post(BackendURL+"/api/auth/register", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("registration failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusCreated {
		fmt.Printf("✓ Registration successful: %s\n", string(body))
		return nil
	} else if resp.StatusCode == http.StatusConflict {
		fmt.Printf("⚠ User already exists (this is OK)\n")
		return nil
	}

	return fmt.Errorf("registration failed: status %d, body: %s", resp.StatusCode, string(body))
}

// Проверка логина
func testLogin() (*http.Client, error) {
	fmt.Println("\n[TEST] Testing /api/auth/login...")

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}

	data := map[string]string{
		"username": TestUser,
		"password": TestPass,
	}

	jsonData, _ := json.Marshal(data)
	resp, err := client.Post(BackendURL+"/api/auth/login", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("login failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	fmt.Printf("✓ Login successful: %s\n", string(body))
	return client, nil
}

// Проверка загрузки батча из двух картинок
func testUpload(client *http.Client) error {
	fmt.Println("\n[TEST] Testing /api/upload...")

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for i := 1; i <= 2; i++ {
		part, err := writer.CreateFormFile("files", fmt.Sprintf("frame%d.png", i))
		if err != nil {
			return err
		}
		if _, err := part.Write(makeTestPNG()); err != nil {
			return err
		}
	}
	writer.Close()

	req, _ := http.NewRequest("POST", BackendURL+"/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload failed: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	fmt.Printf("✓ Upload successful: %s\n", string(respBody))
	return nil
}

// Проверка восстановления
func testRestore(client *http.Client) error {
	fmt.Println("\n[TEST] Testing /api/restore...")

	jsonData, _ := json.Marshal(map[string]string{"algorithm": "dehaze"})
	resp, err := client.Post(BackendURL+"/api/restore", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("restore failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("restore failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	fmt.Printf("✓ Restore successful: %s\n", string(body))
	return nil
}

// Проверка детекции
func testDownstream(client *http.Client) error {
	fmt.Println("\n[TEST] Testing /api/downstream...")

	jsonData, _ := json.Marshal(map[string]interface{}{
		"task":       "detection",
		"confidence": 0.25,
		"iou":        0.5,
		"filter":     "ALL",
	})
	resp, err := client.Post(BackendURL+"/api/downstream", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("downstream failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downstream failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	fmt.Printf("✓ Downstream successful: %s\n", string(body))
	return nil
}

// Проверка плана отрисовки в двухпанельном режиме
func testRender(client *http.Client) error {
	fmt.Println("\n[TEST] Testing /api/render...")

	resp, err := client.Get(BackendURL + "/api/render?layout=dual")
	if err != nil {
		return fmt.Errorf("render failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("render failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var plan struct {
		Layout string `json:"layout"`
		Stage  string `json:"stage"`
		Panes  []struct {
			SlotIndex   int    `json:"slot_index"`
			Placeholder string `json:"placeholder"`
		} `json:"panes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return fmt.Errorf("render decode failed: %v", err)
	}

	fmt.Printf("✓ Render plan: layout=%s stage=%s panes=%d\n", plan.Layout, plan.Stage, len(plan.Panes))
	return nil
}

// makeTestPNG рисует маленькую серую картинку для загрузки
func makeTestPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 128, G: 128, B: 140, A: 255})
		}
	}

	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func main() {
	fmt.Println("=== Storm Vision backend smoke test ===")

	if err := testHealth(); err != nil {
		log.Fatalf("FAIL: %v", err)
	}
	if err := testRegister(); err != nil {
		log.Fatalf("FAIL: %v", err)
	}

	client, err := testLogin()
	if err != nil {
		log.Fatalf("FAIL: %v", err)
	}

	if err := testUpload(client); err != nil {
		log.Fatalf("FAIL: %v", err)
	}
	if err := testRestore(client); err != nil {
		log.Fatalf("FAIL: %v", err)
	}
	if err := testDownstream(client); err != nil {
		log.Fatalf("FAIL: %v", err)
	}
	if err := testRender(client); err != nil {
		log.Fatalf("FAIL: %v", err)
	}

	fmt.Println("\n=== All tests passed ===")
	os.Exit(0)
}
