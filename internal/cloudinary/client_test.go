package cloudinary

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignIgnoresUnsignedKeys(t *testing.T) {
	c := New("demo", "key", "secret", "")
	got := c.sign(map[string]string{"timestamp": "100", "folder": "students", "api_key": "key", "file": "x"})
	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=students&timestamp=100secret")))
	if got != want {
		t.Fatalf("sign = %s, want %s", got, want)
	}
}

func TestUploadBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/demo/image/upload" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("public_id") != "student-1" || r.FormValue("signature") == "" {
			http.Error(w, "bad params", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"public_id":"students/student-1","secure_url":"https://cdn/s1.jpg","width":10,"height":10,"bytes":3}`)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "students")
	c.APIBase = srv.URL
	c.Now = func() time.Time { return time.Unix(100, 0) }
	res, err := c.UploadBytes(context.Background(), []byte("abc"), "s1.jpg", "student-1")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.SecureURL != "https://cdn/s1.jpg" {
		t.Fatalf("result = %+v", res)
	}
}

func TestUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "")
	c.APIBase = srv.URL
	if _, err := c.UploadDataURL(context.Background(), "data:image/png;base64,AAAA", ""); err == nil {
		t.Fatalf("expected error")
	}
}
