package scanning

import (
	"bytes"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("prepareImageData", func() {
	var (
		input       []byte
		contentType string
		output      []byte
		mimeType    string
		converted   bool
		err         error
	)

	JustBeforeEach(func() {
		output, mimeType, converted, err = prepareImageData(input, contentType)
	})

	When("the upload is already PNG", func() {
		BeforeEach(func() {
			input = testPNG()
			contentType = "image/png"
		})

		It("should pass it through", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeFalse())
			Expect(output).To(Equal(input))
			Expect(mimeType).To(Equal("image/png"))
		})
	})

	When("the upload is JPEG", func() {
		BeforeEach(func() {
			input = testJPEG()
			contentType = " Image/JPEG; q=1 "
		})

		It("should convert it to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeTrue())
			_, err := png.Decode(bytes.NewReader(output))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	When("the content type is missing", func() {
		BeforeEach(func() {
			input = testJPEG()
			contentType = ""
		})

		It("should treat the upload as JPEG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeTrue())
		})
	})

	When("the upload is not an image", func() {
		BeforeEach(func() {
			input = []byte("not an image")
			contentType = "image/jpeg"
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("should detect a HEIC brand", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic0000"))).To(BeTrue())
	})

	It("should reject other files", func() {
		Expect(isHEICFormat(testPNG())).To(BeFalse())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
	})
})

var _ = Describe("imageSize", func() {
	It("should read the PNG dimensions", func() {
		w, h, err := imageSize(testPNG())
		Expect(err).NotTo(HaveOccurred())
		Expect(w).To(Equal(40))
		Expect(h).To(Equal(80))
	})

	It("should fail for other data", func() {
		_, _, err := imageSize([]byte("nope"))
		Expect(err).To(HaveOccurred())
	})
})
