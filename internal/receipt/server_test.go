package receipt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var anyPath = regexp.MustCompile(`^/`)

var _ = Describe("Server", func() {
	var (
		service     *Service
		server      *Server
		auth        BasicAuth
		limiter     *RateLimiter
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, limiter, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"} {
			ghttpServer.RouteToHandler(method, anyPath, server.ServeHTTP)
		}
	}

	do := func(method, path, user string, body any) *http.Response {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(data)
		}
		req, err := http.NewRequest(method, ghttpServer.URL()+path, reader)
		Expect(err).NotTo(HaveOccurred())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if user != "" {
			req.Header.Set(userHeader, user)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response, v any) {
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, v)).To(Succeed(), string(body))
	}

	BeforeEach(func() {
		service = newTestService(openTestDB(), &mockScanner{text: d1Ticket}, newMockImageStore(), time.Date(2024, 3, 16, 9, 0, 0, 0, time.UTC))
		auth = BasicAuth{}
		limiter = nil
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("requireUser", func() {
		It("rejects requests without a user", func() {
			resp := do("GET", "/api/tickets", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		When("basic auth is configured", func() {
			BeforeEach(func() {
				auth = BasicAuth{Username: "user", Password: "pass"}
				setupServer()
			})

			It("rejects missing credentials", func() {
				resp := do("GET", "/api/tickets", "u1", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			})

			It("accepts valid credentials", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/tickets", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:pass")))
				req.Header.Set(userHeader, "u1")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})

		When("the rate limit is exceeded", func() {
			BeforeEach(func() {
				limiter = NewRateLimiter(0.001, 2)
				setupServer()
			})

			It("returns Too Many Requests", func() {
				Expect(do("GET", "/api/tickets", "u1", nil).StatusCode).To(Equal(http.StatusOK))
				Expect(do("GET", "/api/tickets", "u1", nil).StatusCode).To(Equal(http.StatusOK))
				Expect(do("GET", "/api/tickets", "u1", nil).StatusCode).To(Equal(http.StatusTooManyRequests))
			})
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			resp := do("OPTIONS", "/api/tickets", "", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Headers")).To(ContainSubstring(userHeader))
		})
	})

	Describe("handleScanTicket", func() {
		upload := func(filename string, data []byte) *http.Response {
			var b bytes.Buffer
			writer := multipart.NewWriter(&b)
			part, err := writer.CreateFormFile("file", filename)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())

			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/tickets", &b)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", writer.FormDataContentType())
			req.Header.Set(userHeader, "u1")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(resp.Body.Close)
			return resp
		}

		When("upload succeeds", func() {
			It("should return the created ticket", func() {
				resp := upload("ticket.png", []byte("fake png data"))
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var detail TicketDetail
				decode(resp, &detail)
				Expect(detail.ID).NotTo(BeEmpty())
				Expect(detail.ParserUsed).To(Equal("d1"))
				Expect(detail.Items).To(HaveLen(3))
			})
		})

		When("no file is sent", func() {
			It("should return Bad Request", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				Expect(writer.WriteField("parser", "d1")).To(Succeed())
				Expect(writer.Close()).To(Succeed())

				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/tickets", &b)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Content-Type", writer.FormDataContentType())
				req.Header.Set(userHeader, "u1")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the file cannot be decoded", func() {
			It("should return Bad Request", func() {
				resp := upload("ticket.jpg", []byte("not a jpeg"))
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Context("with a ticket", func() {
		var ticket TicketDetail

		BeforeEach(func() {
			resp := do("POST", "/api/tickets/text", "u1", map[string]string{"text": d1Ticket})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			decode(resp, &ticket)
		})

		It("lists the user's tickets", func() {
			var tickets []*TicketScan
			decode(do("GET", "/api/tickets", "u1", nil), &tickets)
			Expect(tickets).To(HaveLen(1))

			decode(do("GET", "/api/tickets", "u2", nil), &tickets)
			Expect(tickets).To(BeEmpty())
		})

		It("maps service errors to status codes", func() {
			Expect(do("GET", "/api/tickets/"+ticket.ID, "u1", nil).StatusCode).To(Equal(http.StatusOK))
			Expect(do("GET", "/api/tickets/"+ticket.ID, "u2", nil).StatusCode).To(Equal(http.StatusForbidden))
			Expect(do("GET", "/api/tickets/missing", "u1", nil).StatusCode).To(Equal(http.StatusNotFound))
			Expect(do("GET", "/api/tickets/"+ticket.ID+"/image", "u1", nil).StatusCode).To(Equal(http.StatusNotFound))
		})

		It("edits, ignores and restores items", func() {
			item := ticket.Items[1]
			path := "/api/tickets/" + ticket.ID + "/items/" + item.ID

			var edited TicketScanItem
			resp := do("PATCH", path, "u1", map[string]any{"name": "ARROZ DIANA", "price": 3300})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			decode(resp, &edited)
			Expect(edited.DetectedName).To(Equal("ARROZ DIANA"))
			Expect(edited.DetectedPrice).To(Equal(int64(3300)))

			decode(do("POST", path+"/ignore", "u1", nil), &edited)
			Expect(edited.Status).To(Equal(ItemIgnored))

			decode(do("POST", path+"/restore", "u1", nil), &edited)
			Expect(edited.Status).To(Equal(ItemNew))
		})

		It("rejects unknown fields", func() {
			path := "/api/tickets/" + ticket.ID + "/items/" + ticket.Items[0].ID
			resp := do("PATCH", path, "u1", map[string]any{"colour": "red"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("confirms once", func() {
			var store Store
			resp := do("POST", "/api/stores", "u1", CreateStoreRequest{Name: "Tiendas D1"})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			decode(resp, &store)

			var product Product
			resp = do("POST", "/api/products", "u1", CreateProductRequest{Name: "Leche Entera"})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			decode(resp, &product)
			Expect(product.Category).To(Equal("Lácteos"))

			resp = do("POST", "/api/tickets/"+ticket.ID+"/items/"+ticket.Items[0].ID+"/match", "u1", map[string]string{"product_id": product.ID})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			path := "/api/tickets/" + ticket.ID + "/confirm"
			resp = do("POST", path, "u1", map[string]string{"store_id": store.ID})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var result ConfirmResult
			decode(resp, &result)
			Expect(result.Purchase.Items).To(HaveLen(3))
			Expect(result.Purchase.Items[0].ProductID).To(Equal(product.ID))

			Expect(do("POST", path, "u1", map[string]string{"store_id": store.ID}).StatusCode).To(Equal(http.StatusConflict))
			Expect(do("DELETE", "/api/tickets/"+ticket.ID, "u1", nil).StatusCode).To(Equal(http.StatusConflict))
			Expect(do("DELETE", "/api/stores/"+store.ID, "u1", nil).StatusCode).To(Equal(http.StatusConflict))
			Expect(do("DELETE", "/api/products/"+product.ID, "u1", nil).StatusCode).To(Equal(http.StatusConflict))

			var purchases []*Purchase
			decode(do("GET", "/api/purchases", "u1", nil), &purchases)
			Expect(purchases).To(HaveLen(1))
		})

		It("accepts a bare purchase date and names an unreadable one", func() {
			var store Store
			decode(do("POST", "/api/stores", "u1", CreateStoreRequest{Name: "Tiendas D1"}), &store)
			path := "/api/tickets/" + ticket.ID + "/confirm"

			resp := do("POST", path, "u1", map[string]string{"store_id": store.ID, "purchase_date": "15-03-2024"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			var body map[string]string
			decode(resp, &body)
			Expect(body["error"]).To(ContainSubstring("purchase_date"))

			resp = do("POST", path, "u1", map[string]string{"store_id": store.ID, "purchase_date": "2024-03-14"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var result ConfirmResult
			decode(resp, &result)
			Expect(result.Purchase.PurchaseDate).To(Equal(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)))
		})

		It("rejects a confirmation without store", func() {
			resp := do("POST", "/api/tickets/"+ticket.ID+"/confirm", "u1", map[string]string{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("deletes a READY ticket", func() {
			Expect(do("DELETE", "/api/tickets/"+ticket.ID, "u1", nil).StatusCode).To(Equal(http.StatusNoContent))
			Expect(do("GET", "/api/tickets/"+ticket.ID, "u1", nil).StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handlePreviewParse", func() {
		It("parses without saving", func() {
			resp := do("POST", "/api/parse", "u1", map[string]string{"text": "1 x LECHE ENTERA $4.500\nTOTAL $4.500"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var preview struct {
				Ticket struct {
					Items []struct {
						Description string `json:"description"`
					} `json:"items"`
				} `json:"ticket"`
				Detection struct {
					NeedsConfirmation bool `json:"needs_confirmation"`
				} `json:"detection"`
			}
			decode(resp, &preview)
			Expect(preview.Ticket.Items).To(HaveLen(1))
			Expect(preview.Ticket.Items[0].Description).To(Equal("LECHE ENTERA"))
			Expect(preview.Detection.NeedsConfirmation).To(BeTrue())

			var tickets []*TicketScan
			decode(do("GET", "/api/tickets", "u1", nil), &tickets)
			Expect(tickets).To(BeEmpty())
		})

		It("returns Not Found for an unknown parser", func() {
			resp := do("POST", "/api/parse", "u1", map[string]string{"text": "TOTAL 100", "parser": "carulla"})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleListParsers", func() {
		It("lists parsers with generic last", func() {
			var infos []ParserInfo
			decode(do("GET", "/api/parsers", "u1", nil), &infos)
			Expect(infos).To(HaveLen(5))
			Expect(infos[0].Key).To(Equal("d1"))
			Expect(infos[4].Key).To(Equal("generic"))
			Expect(infos[0].TaxIDs).NotTo(BeEmpty())
		})
	})

	Describe("catalog", func() {
		It("refuses duplicate stores", func() {
			Expect(do("POST", "/api/stores", "u1", CreateStoreRequest{Name: "Ara"}).StatusCode).To(Equal(http.StatusCreated))
			Expect(do("POST", "/api/stores", "u1", CreateStoreRequest{Name: "ARA"}).StatusCode).To(Equal(http.StatusConflict))
			Expect(do("POST", "/api/stores", "u2", CreateStoreRequest{Name: "Ara"}).StatusCode).To(Equal(http.StatusCreated))
		})

		It("searches products by similarity", func() {
			Expect(do("POST", "/api/products", "u1", CreateProductRequest{Name: "LECHE ENTERA"}).StatusCode).To(Equal(http.StatusCreated))
			Expect(do("POST", "/api/products", "u1", CreateProductRequest{Name: "Detergente Fab"}).StatusCode).To(Equal(http.StatusCreated))

			var matches []struct {
				Name       string  `json:"name"`
				Similarity float64 `json:"similarity"`
			}
			decode(do("GET", "/api/products/search?q=Leche+Entera+1L", "u1", nil), &matches)
			Expect(matches).To(HaveLen(1))
			Expect(matches[0].Name).To(Equal("LECHE ENTERA"))
			Expect(matches[0].Similarity).To(BeNumerically("~", 1.0, 0.001))
		})

		It("rejects an empty search", func() {
			Expect(do("GET", "/api/products/search", "u1", nil).StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects invalid products", func() {
			Expect(do("POST", "/api/products", "u1", CreateProductRequest{}).StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("deletes unused products", func() {
			var product Product
			decode(do("POST", "/api/products", "u1", CreateProductRequest{Name: "Pan Tajado"}), &product)
			Expect(do("DELETE", "/api/products/"+product.ID, "u2", nil).StatusCode).To(Equal(http.StatusForbidden))
			Expect(do("DELETE", "/api/products/"+product.ID, "u1", nil).StatusCode).To(Equal(http.StatusNoContent))
		})
	})
})
