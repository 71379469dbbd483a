package avatar

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"mindtracking-client/internal/platform/errors"
)

const cloudinaryAPI = "https://api.cloudinary.com/v1_1"

// CloudinaryConfig selects unsigned (UploadPreset set) or signed uploads.
type CloudinaryConfig struct {
	CloudName    string
	APIKey       string
	APISecret    string
	UploadPreset string
	Folder       string
	// Endpoint overrides the upload URL.
	Endpoint   string
	HTTPClient *http.Client
	Now        func() time.Time
}

type Cloudinary struct {
	cfg      CloudinaryConfig
	endpoint string
	client   *http.Client
	now      func() time.Time
}

func NewCloudinary(cfg CloudinaryConfig) (*Cloudinary, error) {
	if cfg.CloudName == "" && cfg.Endpoint == "" {
		return nil, errors.New(errors.KindConfig, "avatar.cloudinary", "cloud name is required")
	}
	if cfg.UploadPreset == "" && (cfg.APIKey == "" || cfg.APISecret == "") {
		return nil, errors.New(errors.KindConfig, "avatar.cloudinary", "an upload preset or an api key and secret are required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/%s/image/upload", cloudinaryAPI, cfg.CloudName)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cloudinary{cfg: cfg, endpoint: endpoint, client: client, now: now}, nil
}

// Upload posts the jpeg in data and returns its secure_url.
func (c *Cloudinary) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	params := map[string]string{}
	if c.cfg.Folder != "" {
		params["folder"] = c.cfg.Folder
	}
	if c.cfg.UploadPreset != "" {
		params["upload_preset"] = c.cfg.UploadPreset
	} else {
		params["timestamp"] = strconv.FormatInt(c.now().Unix(), 10)
		params["signature"] = Sign(params, c.cfg.APISecret)
		params["api_key"] = c.cfg.APIKey
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, k := range sortedKeys(params) {
		if err := mw.WriteField(k, params[k]); err != nil {
			return "", errors.Wrap(errors.KindUpload, "avatar.upload", "write form field", err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", errors.Wrap(errors.KindUpload, "avatar.upload", "create file part", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", errors.Wrap(errors.KindUpload, "avatar.upload", "write file part", err)
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(errors.KindUpload, "avatar.upload", "close form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", errors.Wrap(errors.KindUpload, "avatar.upload", "build request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.KindNetwork, "avatar.upload", "send upload", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(errors.KindNetwork, "avatar.upload", "read upload response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.KindUpload, "avatar.upload",
			fmt.Sprintf("cloudinary upload failed: %d %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var out struct {
		SecureURL string `json:"secure_url"`
		URL       string `json:"url"`
	}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return "", errors.Wrap(errors.KindShape, "avatar.upload", "decode upload response", err)
	}
	if out.SecureURL != "" {
		return out.SecureURL, nil
	}
	if out.URL != "" {
		return out.URL, nil
	}
	return "", errors.New(errors.KindShape, "avatar.upload", "upload response has no url")
}

// Sign computes the Cloudinary signature: sha1 over the sorted k=v pairs joined by '&'
// with the secret appended. file, api_key and signature itself are never signed.
func Sign(params map[string]string, secret string) string {
	pairs := make([]string, 0, len(params))
	for _, k := range sortedKeys(params) {
		switch k {
		case "file", "api_key", "signature", "resource_type", "cloud_name":
			continue
		}
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
