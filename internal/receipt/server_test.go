package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/zombor/receipt-scanner/internal/category"
	"github.com/zombor/receipt-scanner/internal/layout"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		annotator   *mockAnnotator
		service     *Service
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		annotator = newMockAnnotator()
	})

	JustBeforeEach(func() {
		service = NewService(db, annotator, storage, layout.NewParser(layout.DefaultPolicy()), category.Default())
		server = NewServerWithMux(service, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	do := func(method, path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, v)).To(Succeed())
	}

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := do(http.MethodOptions, "/api/receipts/parse", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("should set headers on API responses", func() {
			resp := do(http.MethodGet, "/api/receipts", nil, "")
			defer resp.Body.Close()
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("DELETE"))
		})
	})

	Describe("handleParseReceipt", func() {
		When("the annotations are valid", func() {
			It("should return the stored receipt", func() {
				resp := do(http.MethodPost, "/api/receipts/parse", bytes.NewReader(mustJSON(sampleAnnotations())), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var receipt Receipt
				decode(resp, &receipt)
				Expect(receipt.ID).To(Equal("LIDL--Sept-04--15:04"))
				Expect(receipt.Items).To(HaveLen(2))
				Expect(receipt.Total.String()).To(Equal("2.21"))
			})
		})

		When("the annotations come as a Cloud Vision response", func() {
			It("should accept them", func() {
				body := `{"responses":[{"textAnnotations":[
					{"description":"page","boundingPoly":{"vertices":[{},{"x":1000},{"x":1000,"y":2000},{"y":2000}]}},
					{"description":"Whole Milk","boundingPoly":{"vertices":[{"x":50,"y":200},{"x":300,"y":200},{"x":300,"y":230},{"x":50,"y":230}]}},
					{"description":"1.32","boundingPoly":{"vertices":[{"x":800,"y":200},{"x":950,"y":200},{"x":950,"y":230},{"x":800,"y":230}]}}
				]}]}`
				resp := do(http.MethodPost, "/api/receipts/parse", bytes.NewBufferString(body), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var receipt Receipt
				decode(resp, &receipt)
				Expect(receipt.Items).To(HaveLen(1))
				Expect(receipt.Items[0].Name).To(Equal("Whole Milk"))
			})
		})

		When("the body is not JSON", func() {
			It("should return status Bad Request with an error body", func() {
				resp := do(http.MethodPost, "/api/receipts/parse", bytes.NewBufferString("nope"), "application/json")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(ContainSubstring("invalid annotations"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.saveErr = errors.New("database error")
			})

			It("should return status Internal Server Error", func() {
				resp := do(http.MethodPost, "/api/receipts/parse", bytes.NewReader(mustJSON(sampleAnnotations())), "application/json")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleScanReceipt", func() {
		upload := func(filename, contentType string) (*bytes.Buffer, string) {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
			if contentType != "" {
				h.Set("Content-Type", contentType)
			}
			part, err := writer.CreatePart(h)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("fake image data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())
			return body, writer.FormDataContentType()
		}

		When("a file is uploaded", func() {
			It("should return the stored receipt", func() {
				body, ct := upload("receipt.jpg", "image/jpeg")
				resp := do(http.MethodPost, "/api/receipts/scan", body, ct)
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var receipt Receipt
				decode(resp, &receipt)
				Expect(receipt.Merchant).To(Equal("LIDL"))
				Expect(annotator.contentType).To(Equal("image/jpeg"))
			})
		})

		When("the part has no content type", func() {
			It("should guess it from the file name", func() {
				body, ct := upload("receipt.HEIC", "")
				resp := do(http.MethodPost, "/api/receipts/scan", body, ct)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(annotator.contentType).To(Equal("image/heic"))
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("other", "value")).To(Succeed())
				Expect(writer.Close()).To(Succeed())

				resp := do(http.MethodPost, "/api/receipts/scan", body, writer.FormDataContentType())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var errBody map[string]string
				decode(resp, &errBody)
				Expect(errBody["error"]).To(Equal("No file provided"))
			})
		})

		When("annotation fails", func() {
			BeforeEach(func() {
				annotator.annotateErr = errors.New("ocr failed")
			})

			It("should return status Bad Request", func() {
				body, ct := upload("receipt.jpg", "image/jpeg")
				resp := do(http.MethodPost, "/api/receipts/scan", body, ct)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleListReceipts", func() {
		When("receipts exist", func() {
			BeforeEach(func() {
				db.receipts["id1"] = &Receipt{ID: "id1"}
				db.receipts["id2"] = &Receipt{ID: "id2"}
			})

			It("should return all receipts", func() {
				resp := do(http.MethodGet, "/api/receipts", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var receipts []*Receipt
				decode(resp, &receipts)
				Expect(receipts).To(HaveLen(2))
			})
		})

		When("no receipts exist", func() {
			It("should return an empty array", func() {
				resp := do(http.MethodGet, "/api/receipts", nil, "")
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(bytes.TrimSpace(body))).To(Equal("[]"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("database error")
			})

			It("should return status Internal Server Error", func() {
				resp := do(http.MethodGet, "/api/receipts", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleGetReceipt", func() {
		BeforeEach(func() {
			db.receipts["LIDL--Sept-04--15:04"] = &Receipt{ID: "LIDL--Sept-04--15:04", Merchant: "LIDL"}
		})

		When("receipt exists", func() {
			It("should return the receipt", func() {
				resp := do(http.MethodGet, "/api/receipts/LIDL--Sept-04--15:04", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var receipt Receipt
				decode(resp, &receipt)
				Expect(receipt.Merchant).To(Equal("LIDL"))
			})
		})

		When("receipt does not exist", func() {
			It("should return status Not Found", func() {
				resp := do(http.MethodGet, "/api/receipts/missing", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				var body map[string]string
				decode(resp, &body)
				Expect(body["error"]).To(Equal("Receipt not found"))
			})
		})
	})

	Describe("handleDeleteReceipt", func() {
		When("receipt exists", func() {
			BeforeEach(func() {
				db.receipts["id1"] = &Receipt{ID: "id1", Filename: "id1.json"}
				storage.files["id1.json"] = []byte("[]")
			})

			It("should return status No Content", func() {
				resp := do(http.MethodDelete, "/api/receipts/id1", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				Expect(db.receipts).To(BeEmpty())
			})
		})

		When("receipt does not exist", func() {
			It("should return status Internal Server Error", func() {
				resp := do(http.MethodDelete, "/api/receipts/missing", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleReparseReceipt", func() {
		When("receipt exists", func() {
			BeforeEach(func() {
				db.receipts["id1"] = &Receipt{ID: "id1", Filename: "id1.json"}
				storage.files["id1.json"] = mustJSON(sampleAnnotations())
			})

			It("should return the reparsed receipt", func() {
				resp := do(http.MethodPost, "/api/receipts/id1/reparse", nil, "")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var receipt Receipt
				decode(resp, &receipt)
				Expect(receipt.ID).To(Equal("id1"))
				Expect(receipt.Items).To(HaveLen(2))
			})
		})

		When("receipt does not exist", func() {
			It("should return status Not Found", func() {
				resp := do(http.MethodPost, "/api/receipts/missing/reparse", nil, "")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleExportReceipts", func() {
		It("should return a workbook", func() {
			resp := do(http.MethodGet, "/api/receipts/export.xlsx", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("receipts.xlsx"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body[:2]).To(Equal([]byte("PK")))
		})
	})

	Describe("metrics", func() {
		It("should expose Prometheus metrics", func() {
			resp := do(http.MethodGet, "/metrics", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("go_goroutines"))
		})
	})

	Describe("unknown routes", func() {
		It("should return status Method Not Allowed for a wrong method", func() {
			resp := do(http.MethodPut, "/api/receipts", nil, "")
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
		})
	})
})
