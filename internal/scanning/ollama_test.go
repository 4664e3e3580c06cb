package scanning

import (
	"encoding/json"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/zombor/receipt-scanner/internal/layout"
)

var _ = Describe("Ollama", func() {
	var (
		server    *ghttp.Server
		annotator *Ollama
		anns      []layout.Annotation
		err       error
		request   ollamaChatRequest
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		annotator, err = NewOllama(server.URL()+"/", "qwen2.5vl")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		anns, err = annotator.Annotate(testPNG(), "image/png")
	})

	When("the model returns word boxes", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					Expect(json.Unmarshal(body, &request)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{
						Role:    "assistant",
						Content: "```json\n[{\"text\": \"LIDL\", \"boundingBox\": [{\"x\": 4, \"y\": 2}, {\"x\": 30, \"y\": 2}, {\"x\": 30, \"y\": 9}, {\"x\": 4, \"y\": 9}]}]\n```",
					},
					Done: true,
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the page and the words", func() {
			Expect(anns).To(HaveLen(2))
			Expect(anns[1].Text).To(Equal("LIDL"))
		})

		It("should send the image with the prompt", func() {
			Expect(request.Model).To(Equal("qwen2.5vl"))
			Expect(request.Stream).To(BeFalse())
			Expect(request.Messages).To(HaveLen(2))
			Expect(request.Messages[1].Images).To(HaveLen(1))
			Expect(request.Messages[1].Content).To(ContainSubstring("40 pixels wide and 80 pixels high"))
		})
	})

	When("the API fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
			Expect(anns).To(BeNil())
		})
	})

	When("the model answers with prose", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: "I cannot read this receipt."},
				Done:    true,
			}))
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("parsing annotations")))
		})
	})
})
