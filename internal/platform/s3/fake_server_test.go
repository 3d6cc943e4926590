package s3

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// testClient creates a Client backed by a test HTTP server.
// The handler receives real S3 XML-protocol requests.
func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(server.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		HTTPClient: &http.Client{
			Transport: &http.Transport{},
		},
		// Retries are exercised through UploadDir, not the SDK.
		RetryMaxAttempts: 1,
		// Keeps PUT bodies as plain bytes instead of aws-chunked payloads.
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	})

	return &Client{s3: client, region: "us-east-1"}
}

// xmlResponse is a helper to write S3-style XML responses.
func xmlResponse(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(body))
}

func s3Error(w http.ResponseWriter, status int, code string) {
	xmlResponse(w, status, fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Error>
  <Code>%s</Code>
  <Message>%s</Message>
</Error>`, code, code))
}

// memoryStore is a minimal path-style S3 server keeping objects in memory.
type memoryStore struct {
	mu       sync.Mutex
	buckets  map[string]map[string][]byte
	putFails int // number of PUT object requests to fail with 500 first
	requests []string
}

func newMemoryStore(buckets ...string) *memoryStore {
	m := &memoryStore{buckets: make(map[string]map[string][]byte)}
	for _, b := range buckets {
		m.buckets[b] = make(map[string][]byte)
	}
	return m
}

func (m *memoryStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	m.requests = append(m.requests, r.Method+" "+r.URL.Path)
	objects, exists := m.buckets[bucket]

	switch {
	case r.Method == http.MethodHead && key == "":
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPut && key == "":
		if exists {
			s3Error(w, http.StatusConflict, "BucketAlreadyOwnedByYou")
			return
		}
		m.buckets[bucket] = make(map[string][]byte)
		xmlResponse(w, http.StatusOK, `<?xml version="1.0" encoding="UTF-8"?><CreateBucketResult/>`)

	case r.Method == http.MethodPut:
		if !exists {
			s3Error(w, http.StatusNotFound, "NoSuchBucket")
			return
		}
		if m.putFails > 0 {
			m.putFails--
			s3Error(w, http.StatusInternalServerError, "InternalError")
			return
		}
		body, _ := io.ReadAll(r.Body)
		objects[key] = body
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet && key == "":
		if !exists {
			s3Error(w, http.StatusNotFound, "NoSuchBucket")
			return
		}
		prefix := r.URL.Query().Get("prefix")
		var keys []string
		for k := range objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		var contents strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&contents, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", k, len(objects[k]))
		}
		xmlResponse(w, http.StatusOK, fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>%s</Name>
  <Prefix>%s</Prefix>
  <KeyCount>%d</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  %s
</ListBucketResult>`, bucket, prefix, len(keys), contents.String()))

	case r.Method == http.MethodGet:
		data, ok := objects[key]
		if !ok {
			s3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (m *memoryStore) object(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.buckets[bucket][key]
	return data, ok
}

func (m *memoryStore) put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string][]byte)
	}
	m.buckets[bucket][key] = data
}
