package layout

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("classify", func() {
	var (
		policy *compiledPolicy
		input  string
		tok    Token
	)

	BeforeEach(func() {
		policy = compilePolicy(DefaultPolicy())
	})

	JustBeforeEach(func() {
		tok = policy.classify(input)
	})

	DescribeTable("token classes",
		func(text string, class TokenClass) {
			Expect(policy.classify(text).Class).To(Equal(class))
		},
		Entry("decimal", "1.32", Price),
		Entry("negative decimal", "-0.63", Price),
		Entry("decimal comma", "1,32", Price),
		Entry("integer", "1", Integer),
		Entry("whole decimal", "2.00", Integer),
		Entry("hanging fragment", "1,", HangingFragment),
		Entry("date with slashes", "04/09/21", Date),
		Entry("date with dashes", "04-09-21", Date),
		Entry("date with dots", "04.09.21", Date),
		Entry("time", "15:04:33", Time),
		Entry("merchant", "LIDL", Merchant),
		Entry("merchant in lower case", "Tesco", Merchant),
		Entry("merchant misread", "LiDL", Merchant),
		Entry("merchant misread with prefix", "LIDI", Merchant),
		Entry("long word starting with LID", "LIDOCAINE", Text),
		Entry("text", "Bananas", Text),
		Entry("empty", "", Text),
		Entry("impossible date", "39/19/21", Text),
	)

	When("a price carries a tax flag", func() {
		BeforeEach(func() {
			input = "1.32 A"
		})

		It("should classify as price", func() {
			Expect(tok.Class).To(Equal(Price))
		})

		It("should drop the flag from the value", func() {
			Expect(tok.Number.String()).To(Equal("1.32"))
		})
	})

	When("a date is classified", func() {
		It("should extract the same value for every separator", func() {
			slash := policy.classify("04/09/21")
			dash := policy.classify("04-09-21")
			dot := policy.classify("04.09.21")
			Expect(dash.Date).To(Equal(slash.Date))
			Expect(dot.Date).To(Equal(slash.Date))
			Expect(slash.Date.Format(DateLayout)).To(Equal("04/09/21"))
		})
	})

	When("a date is embedded in other text", func() {
		BeforeEach(func() {
			input = "04/09/21 15:04"
		})

		It("should classify as date", func() {
			Expect(tok.Class).To(Equal(Date))
		})
	})

	When("a time is classified", func() {
		BeforeEach(func() {
			input = "15:04:33"
		})

		It("should keep the clock text", func() {
			Expect(tok.Time).To(Equal("15:04:33"))
		})
	})
})

var _ = Describe("startsWord", func() {
	DescribeTable("word boundaries",
		func(text string, expected bool) {
			Expect(startsWord(text)).To(Equal(expected))
		},
		Entry("capital", "Milk", true),
		Entry("digit", "2L", true),
		Entry("pound sign", "£0.22", true),
		Entry("multiplier", "x", true),
		Entry("lower case", "ilk", false),
		Entry("empty", "", false),
	)
})

var _ = Describe("letterCount", func() {
	It("should count letters only", func() {
		Expect(letterCount("2 x Eggs 6pk")).To(Equal(7))
	})
})
