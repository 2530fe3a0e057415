package receipt_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/grocery-tracker/internal/category"
	"github.com/zombor/grocery-tracker/internal/matching"
	"github.com/zombor/grocery-tracker/internal/parser"
	"github.com/zombor/grocery-tracker/internal/receipt"
	"github.com/zombor/grocery-tracker/internal/scanning"
)

// MockScanner returns the same text for every image
type MockScanner struct {
	text string
}

func (m *MockScanner) RecognizeText(imageData []byte, contentType string) (*scanning.OCRResult, error) {
	return &scanning.OCRResult{FullText: m.text}, nil
}

func (m *MockScanner) Close() error {
	return nil
}

var _ = Describe("Integration", func() {
	var (
		storagePath string
		db          *receipt.BoltDB
		store       *receipt.LocalStorage
		service     *receipt.Service
		server      *receipt.Server
		ghServer    *ghttp.Server
	)

	BeforeEach(func() {
		tempDir := GinkgoT().TempDir()
		storagePath = filepath.Join(tempDir, "tickets")

		var err error
		db, err = receipt.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = receipt.NewLocalStorage(storagePath, "")
		Expect(err).NotTo(HaveOccurred())

		scanner := &MockScanner{text: "TIENDAS ARA\n" +
			"JERONIMO MARTINS COLOMBIA\n" +
			"NIT 900.480.569-1\n" +
			"15/03/2024 18:22\n" +
			"2 UN X 2.500\n" +
			"7702001 GALLETAS DUCALES 5.000\n" +
			"7709999 JABON REY 3.900\n" +
			"TOTAL 8.900\n" +
			"EFECTIVO 10.000\n"}

		service = receipt.NewService(
			db,
			scanner,
			store,
			parser.NewDefaultRegistry(parser.RegistryConfig{}),
			matching.NewEngine(matching.DefaultThresholds()),
			category.NewDefaultClassifier(),
		)
		server = receipt.NewServer(service, receipt.BasicAuth{}, nil) // No auth for testing convenience

		ghServer = ghttp.NewServer()
	})

	AfterEach(func() {
		ghServer.Close()
		db.Close()
	})

	post := func(path string, contentType string, body io.Reader) *http.Response {
		req, err := http.NewRequest("POST", ghServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-User-ID", "u1")
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	It("should upload a ticket, review it and confirm it into a purchase", func() {
		ghServer.AppendHandlers(
			server.ServeHTTP, // upload
			server.ServeHTTP, // store
			server.ServeHTTP, // confirm
		)

		// --- Step 1: upload ---
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "ara.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte("fake png content"))
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp := post("/api/tickets", writer.FormDataContentType(), body)
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var ticket receipt.TicketDetail
		Expect(json.NewDecoder(resp.Body).Decode(&ticket)).To(Succeed())
		Expect(ticket.ParserUsed).To(Equal("ara"))
		Expect(ticket.Payment.Method).To(Equal(parser.PaymentCash))
		Expect(ticket.Items).To(HaveLen(2))
		Expect(ticket.Items[0].DetectedName).To(Equal("GALLETAS DUCALES"))
		Expect(ticket.Items[0].DetectedQuantity.IntPart()).To(Equal(int64(2)))
		Expect(ticket.Items[0].Flags).To(ContainElement(parser.FlagQuantityCarried))

		// The image is on disk
		data, err := store.Get(ticket.ImageRef)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("fake png content"))

		// --- Step 2: store ---
		storeBody, _ := json.Marshal(receipt.CreateStoreRequest{Name: "Tiendas Ara", NIT: "900480569-1"})
		resp = post("/api/stores", "application/json", bytes.NewReader(storeBody))
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var created receipt.Store
		Expect(json.NewDecoder(resp.Body).Decode(&created)).To(Succeed())

		// --- Step 3: confirm ---
		confirmBody, _ := json.Marshal(receipt.ConfirmRequest{StoreID: created.ID})
		resp = post("/api/tickets/"+ticket.ID+"/confirm", "application/json", bytes.NewReader(confirmBody))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var result receipt.ConfirmResult
		Expect(json.NewDecoder(resp.Body).Decode(&result)).To(Succeed())
		Expect(result.Purchase.Total).To(Equal(int64(8900)))
		Expect(result.CreatedProducts).To(HaveLen(2))

		categories := map[string]string{}
		for _, p := range result.CreatedProducts {
			categories[p.Name] = p.Category
		}
		Expect(categories).To(HaveKeyWithValue("JABON REY", "Aseo"))

		// The purchase is durable
		purchases, err := service.ListPurchases("u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(purchases).To(HaveLen(1))

		confirmed, err := service.GetTicket("u1", ticket.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(confirmed.Status).To(Equal(receipt.TicketConfirmed))

		_, err = service.CreateTicketFromText(context.Background(), "u1", "", "")
		Expect(err).To(MatchError(receipt.ErrInput))
	})
})
