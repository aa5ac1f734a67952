package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"receiptsnap/internal/extraction"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		blobs       *mockBlobStore
		extractor   *mockExtractor
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		blobs = newMockBlobStore()
		extractor = newMockExtractor()
		service = NewServiceWithDeps(db, blobs, extractor,
			&mockIDGenerator{id: "test-id-123"},
			&mockTimeSource{now: time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)})
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	decodeEnvelope := func(resp *http.Response) map[string]interface{} {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		var payload map[string]interface{}
		Expect(json.Unmarshal(body, &payload)).NotTo(HaveOccurred())
		return payload
	}

	Describe("handleIndex", func() {
		It("should serve the HTML interface", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("ReceiptSnap"))
		})
	})

	Describe("POST /api/receipts", func() {
		post := func(body interface{}) *http.Response {
			data, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.Post(ghttpServer.URL()+"/api/receipts", "application/json", bytes.NewReader(data))
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the draft is valid", func() {
			It("should create the receipt", func() {
				resp := post(map[string]string{
					"storeName": "Ab",
					"amount":    "12.50",
					"date":      "2024-01-15",
				})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				payload := decodeEnvelope(resp)
				Expect(payload["success"]).To(BeTrue())
				data := payload["data"].(map[string]interface{})
				Expect(data["storeName"]).To(Equal("Ab"))
				Expect(data["amount"]).To(Equal(12.50))
				Expect(data["imageUrl"]).To(Equal(PlaceholderImageURL))
			})
		})

		When("the draft is invalid", func() {
			It("should return 400 with field-scoped messages", func() {
				resp := post(map[string]string{
					"storeName": "A",
					"amount":    "0",
					"date":      "",
				})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				payload := decodeEnvelope(resp)
				Expect(payload["success"]).To(BeFalse())
				fields := payload["fields"].(map[string]interface{})
				Expect(fields).To(HaveKey("storeName"))
				Expect(fields).To(HaveKey("amount"))
				Expect(fields).To(HaveKey("date"))
			})
		})

		When("the body is not JSON", func() {
			It("should return 400", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/receipts", "application/json", bytes.NewReader([]byte("not json")))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the store create fails", func() {
			BeforeEach(func() {
				db.saveErr = errors.New("simulated store outage")
			})

			It("should surface the error verbatim with status 500", func() {
				resp := post(map[string]string{
					"storeName": "Ab",
					"amount":    "12.50",
					"date":      "2024-01-15",
				})
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))

				payload := decodeEnvelope(resp)
				Expect(payload["error"]).To(ContainSubstring("simulated store outage"))
			})
		})
	})

	Describe("GET /api/receipts/{id}", func() {
		BeforeEach(func() {
			db.receipts["r1"] = &Receipt{ID: "r1", StoreName: "Coffee Shop", Amount: 12.5}
			setupServer()
		})

		It("should return an existing receipt", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			payload := decodeEnvelope(resp)
			data := payload["data"].(map[string]interface{})
			Expect(data["storeName"]).To(Equal("Coffee Shop"))
		})

		It("should return 404 for an unknown ID", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/nope")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("PUT /api/receipts/{id}", func() {
		BeforeEach(func() {
			db.receipts["r1"] = &Receipt{ID: "r1", StoreName: "Old", Amount: 10}
			setupServer()
		})

		put := func(id string, body string) *http.Response {
			req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/receipts/"+id, bytes.NewReader([]byte(body)))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("should merge only provided fields", func() {
			resp := put("r1", `{"amount": 22.5}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			payload := decodeEnvelope(resp)
			data := payload["data"].(map[string]interface{})
			Expect(data["amount"]).To(Equal(22.5))
			Expect(data["storeName"]).To(Equal("Old"))
		})

		It("should reject an empty patch", func() {
			resp := put("r1", `{}`)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should reject a malformed date", func() {
			resp := put("r1", `{"date": "15/01/2024"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			payload := decodeEnvelope(resp)
			fields := payload["fields"].(map[string]interface{})
			Expect(fields).To(HaveKey("date"))
		})

		It("should return 404 for an unknown ID", func() {
			resp := put("nope", `{"amount": 1}`)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("DELETE /api/receipts/{id}", func() {
		BeforeEach(func() {
			db.receipts["r1"] = &Receipt{ID: "r1", StoreName: "Coffee Shop"}
			setupServer()
		})

		It("should delete and return the record", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/receipts/r1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			payload := decodeEnvelope(resp)
			data := payload["data"].(map[string]interface{})
			Expect(data["id"]).To(Equal("r1"))
			Expect(db.receipts).NotTo(HaveKey("r1"))
		})

		It("should return 404 for an unknown ID", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/receipts/nope", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/receipts", func() {
		BeforeEach(func() {
			db.receipts["a"] = &Receipt{ID: "a", StoreName: "Coffee Shop", Amount: 12.5, Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)}
			db.receipts["b"] = &Receipt{ID: "b", StoreName: "Target", Amount: 99.99, Date: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)}
			setupServer()
		})

		It("should return the list with pagination metadata", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts?limit=1&page=1&sortBy=amount&sortOrder=desc")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			payload := decodeEnvelope(resp)
			data := payload["data"].([]interface{})
			Expect(data).To(HaveLen(1))
			first := data[0].(map[string]interface{})
			Expect(first["id"]).To(Equal("b"))

			pagination := payload["pagination"].(map[string]interface{})
			Expect(pagination["total"]).To(Equal(2.0))
			Expect(pagination["pages"]).To(Equal(2.0))
		})

		It("should filter by store name substring", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts?storeName=coffee")
			Expect(err).NotTo(HaveOccurred())
			payload := decodeEnvelope(resp)
			data := payload["data"].([]interface{})
			Expect(data).To(HaveLen(1))
		})

		It("should reject a malformed amount filter", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts?minAmount=abc")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/receipts/summary", func() {
		BeforeEach(func() {
			db.receipts["a"] = &Receipt{ID: "a", Amount: 10}
			db.receipts["b"] = &Receipt{ID: "b", Amount: 30}
			setupServer()
		})

		It("should return the aggregates", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts/summary")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			payload := decodeEnvelope(resp)
			data := payload["data"].(map[string]interface{})
			Expect(data["totalAmount"]).To(Equal(40.0))
			Expect(data["receiptCount"]).To(Equal(2.0))
			Expect(data["averageAmount"]).To(Equal(20.0))
		})
	})

	Describe("POST /api/analyze", func() {
		postImage := func() *http.Response {
			var buf bytes.Buffer
			writer := multipart.NewWriter(&buf)
			part, err := writer.CreateFormFile("file", "receipt.jpg")
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("fake jpeg data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).NotTo(HaveOccurred())

			resp, err := http.Post(ghttpServer.URL()+"/api/analyze", writer.FormDataContentType(), &buf)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("extraction succeeds", func() {
			It("should return the extraction result", func() {
				resp := postImage()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				payload := decodeEnvelope(resp)
				data := payload["data"].(map[string]interface{})
				Expect(data["storeName"]).To(Equal("Coffee Shop"))
				Expect(data["succeeded"]).To(BeTrue())
			})
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				extractor.result = extraction.Result{Succeeded: false, ErrorMessage: "model unavailable"}
			})

			It("should still return 200 with the failure in-band", func() {
				resp := postImage()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				payload := decodeEnvelope(resp)
				data := payload["data"].(map[string]interface{})
				Expect(data["succeeded"]).To(BeFalse())
				Expect(data["errorMessage"]).To(Equal("model unavailable"))
			})
		})

		When("no file is provided", func() {
			It("should return 400", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/analyze", "multipart/form-data; boundary=x", bytes.NewReader([]byte("--x--")))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()
		})

		It("should reject unauthenticated requests", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/receipts")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept correct credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
