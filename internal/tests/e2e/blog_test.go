//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bloghub/apiserver/config"
	"github.com/bloghub/apiserver/internal/server"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

type userResponse struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type categoryResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type commentResponse struct {
	ID   int          `json:"id"`
	User userResponse `json:"user"`
	Text string       `json:"text"`
}

type postResponse struct {
	ID       int               `json:"id"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Image    string            `json:"image"`
	Author   *userResponse     `json:"author"`
	Category *categoryResponse `json:"category"`
	Comments []commentResponse `json:"comments"`
}

type postListResponse struct {
	Posts []postResponse `json:"posts"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Pages int            `json:"pages"`
}

func TestBlogLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("author_%d", time.Now().UnixNano())
	email := username + "@example.com"
	password := "testpass123!"

	if err := registerUser(t, baseURL, username, email, password); err != nil {
		t.Fatalf("register user: %v", err)
	}

	auth, err := loginUser(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if auth.User.Username != username {
		t.Fatalf("unexpected login username: %q", auth.User.Username)
	}

	category, err := createCategory(t, baseURL, auth.Token, fmt.Sprintf("cat_%d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	created, err := createPost(t, baseURL, auth.Token, "T", "hello world", category.ID)
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if created.ID == 0 || created.Title != "T" {
		t.Fatalf("unexpected created post: %+v", created)
	}

	fetched, err := getPost(t, baseURL, created.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if fetched.Author == nil || fetched.Author.Username != username {
		t.Fatalf("expected author %q, got %+v", username, fetched.Author)
	}
	if fetched.Category == nil || fetched.Category.ID != category.ID {
		t.Fatalf("expected category %d, got %+v", category.ID, fetched.Category)
	}
	if len(fetched.Comments) != 0 {
		t.Fatalf("expected empty comments, got %d", len(fetched.Comments))
	}

	comment, err := addComment(t, baseURL, auth.Token, created.ID, "hi")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if comment.Text != "hi" {
		t.Fatalf("unexpected comment text: %q", comment.Text)
	}

	fetched, err = getPost(t, baseURL, created.ID)
	if err != nil {
		t.Fatalf("get post after comment: %v", err)
	}
	if len(fetched.Comments) != 1 || fetched.Comments[0].Text != "hi" || fetched.Comments[0].User.Username != username {
		t.Fatalf("unexpected comments after append: %+v", fetched.Comments)
	}

	updated, err := updatePost(t, baseURL, auth.Token, created.ID, "T2")
	if err != nil {
		t.Fatalf("update post: %v", err)
	}
	if updated.Title != "T2" || updated.Content != "hello world" {
		t.Fatalf("unexpected updated post: %+v", updated)
	}

	if err := deletePost(t, baseURL, auth.Token, created.ID); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if err := expectPostNotFound(t, baseURL, created.ID); err != nil {
		t.Fatalf("expected deleted post to be missing: %v", err)
	}
}

func TestPaginationWindow(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("pager_%d", time.Now().UnixNano())
	email := username + "@example.com"
	password := "testpass123!"

	if err := registerUser(t, baseURL, username, email, password); err != nil {
		t.Fatalf("register user: %v", err)
	}
	auth, err := loginUser(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	for i := 1; i <= 12; i++ {
		if _, err := createPost(t, baseURL, auth.Token, fmt.Sprintf("page-post-%02d", i), "content", 0); err != nil {
			t.Fatalf("seed post %d: %v", i, err)
		}
	}

	list, err := listPosts(t, baseURL, 2, 5)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if list.Page != 2 {
		t.Fatalf("unexpected page: %d", list.Page)
	}
	if len(list.Posts) != 5 {
		t.Fatalf("expected 5 posts on page 2, got %d", len(list.Posts))
	}
	if list.Total < 12 {
		t.Fatalf("expected at least 12 posts, got %d", list.Total)
	}
	for _, post := range list.Posts {
		if post.Author == nil || post.Author.Username == "" {
			t.Fatalf("expected author projection on listed post: %+v", post)
		}
	}
}

func TestImageUploadRoundTrip(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("uploader_%d", time.Now().UnixNano())
	email := username + "@example.com"
	password := "testpass123!"

	if err := registerUser(t, baseURL, username, email, password); err != nil {
		t.Fatalf("register user: %v", err)
	}
	auth, err := loginUser(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	imageURL, err := uploadImage(t, baseURL, auth.Token, "pic.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("upload image: %v", err)
	}
	if !strings.HasPrefix(imageURL, "/uploads/") {
		t.Fatalf("unexpected image url: %q", imageURL)
	}

	resp, err := http.Get(baseURL + imageURL)
	if err != nil {
		t.Fatalf("fetch image: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch image status: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected image bytes: %q", data)
	}
}

func registerUser(t *testing.T, baseURL, username, email, password string) error {
	t.Helper()

	payload := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}
	resp, err := postJSON(baseURL+"/auth/register", "", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("register status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func loginUser(t *testing.T, baseURL, email, password string) (authResponse, error) {
	t.Helper()

	resp, err := postJSON(baseURL+"/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return authResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return authResponse{}, fmt.Errorf("login status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return authResponse{}, err
	}
	if parsed.Token == "" {
		return authResponse{}, fmt.Errorf("missing token in login response")
	}
	return parsed, nil
}

func createCategory(t *testing.T, baseURL, token, name string) (categoryResponse, error) {
	t.Helper()

	resp, err := postJSON(baseURL+"/categories", token, map[string]string{"name": name})
	if err != nil {
		return categoryResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return categoryResponse{}, fmt.Errorf("create category status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed categoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return categoryResponse{}, err
	}
	return parsed, nil
}

func createPost(t *testing.T, baseURL, token, title, content string, categoryID int) (postResponse, error) {
	t.Helper()

	payload := map[string]any{
		"title":   title,
		"content": content,
	}
	if categoryID != 0 {
		payload["category"] = categoryID
	}
	resp, err := postJSON(baseURL+"/posts", token, payload)
	if err != nil {
		return postResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return postResponse{}, fmt.Errorf("create post status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed postResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return postResponse{}, err
	}
	return parsed, nil
}

func getPost(t *testing.T, baseURL string, id int) (postResponse, error) {
	t.Helper()

	resp, err := http.Get(fmt.Sprintf("%s/posts/%d", baseURL, id))
	if err != nil {
		return postResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return postResponse{}, fmt.Errorf("get post status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed postResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return postResponse{}, err
	}
	return parsed, nil
}

func listPosts(t *testing.T, baseURL string, page, limit int) (postListResponse, error) {
	t.Helper()

	resp, err := http.Get(fmt.Sprintf("%s/posts?page=%d&limit=%d", baseURL, page, limit))
	if err != nil {
		return postListResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return postListResponse{}, fmt.Errorf("list posts status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed postListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return postListResponse{}, err
	}
	return parsed, nil
}

func updatePost(t *testing.T, baseURL, token string, id int, title string) (postResponse, error) {
	t.Helper()

	body, err := json.Marshal(map[string]string{"title": title})
	if err != nil {
		return postResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/posts/%d", baseURL, id), bytes.NewReader(body))
	if err != nil {
		return postResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return postResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return postResponse{}, fmt.Errorf("update post status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed postResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return postResponse{}, err
	}
	return parsed, nil
}

func deletePost(t *testing.T, baseURL, token string, id int) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/posts/%d", baseURL, id), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete post status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func expectPostNotFound(t *testing.T, baseURL string, id int) error {
	t.Helper()

	resp, err := http.Get(fmt.Sprintf("%s/posts/%d", baseURL, id))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("expected 404 after delete, got %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func addComment(t *testing.T, baseURL, token string, postID int, text string) (commentResponse, error) {
	t.Helper()

	resp, err := postJSON(fmt.Sprintf("%s/posts/%d/comments", baseURL, postID), token, map[string]string{"text": text})
	if err != nil {
		return commentResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return commentResponse{}, fmt.Errorf("add comment status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed commentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return commentResponse{}, err
	}
	return parsed, nil
}

func uploadImage(t *testing.T, baseURL, token, filename string, data []byte) (string, error) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/posts/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.ImageURL, nil
}

func postJSON(url, token string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}

func waitForPostgres(ctx context.Context) error {
	dsn := buildPostgresURL(config.LoadConfig())
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	dsn := buildPostgresURL(config.LoadConfig())
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")

	migrator, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func buildPostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}
	host := fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		host,
		cfg.Database.DBName,
		sslmode,
	)
}

func startServer() (*server.Server, error) {
	uploadsDir, err := os.MkdirTemp("", "bloghub-uploads-")
	if err != nil {
		return nil, err
	}

	_ = os.Setenv("AUTH_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "bloghub")
	_ = os.Setenv("DB_PASSWORD", "password")
	_ = os.Setenv("DB_NAME", "bloghub_db")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("STORAGE_BACKEND", "local")
	_ = os.Setenv("STORAGE_LOCAL_DIR", uploadsDir)
	_ = os.Setenv("EVENTS_BACKEND", "none")

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
