package sequence_test

import (
	"casework/domain/sequence"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Format", func() {
	It("should pad numbers to four digits", func() {
		Ω(sequence.Format("BES", 2025, 7)).Should(Equal("BES-2025-0007"))
		Ω(sequence.Format("ZUL", 2024, 1)).Should(Equal("ZUL-2024-0001"))
		Ω(sequence.Format("ALL", 2025, 9999)).Should(Equal("ALL-2025-9999"))
	})

	It("should never truncate large numbers", func() {
		Ω(sequence.Format("BES", 2025, 12345)).Should(Equal("BES-2025-12345"))
	})
})

var _ = Describe("PrefixCatalog", func() {
	It("should know the default prefixes", func() {
		catalog := sequence.DefaultPrefixCatalog()
		Ω(catalog.Prefixes()).Should(Equal([]string{"ALL", "AUF", "BES", "ZUL"}))

		category, found := catalog.Lookup("BES")
		Ω(found).Should(BeTrue())
		Ω(category).Should(Equal(sequence.CategoryAppointment))

		_, found = catalog.Lookup("bes")
		Ω(found).Should(BeFalse())
	})

	It("should reject malformed prefixes", func() {
		_, err := sequence.NewPrefixCatalog(map[string]sequence.Category{"bes": sequence.CategoryAppointment})
		Ω(err).Should(MatchError(`invalid case number prefix "bes"`))
		_, err = sequence.NewPrefixCatalog(map[string]sequence.Category{"": sequence.CategoryGeneral})
		Ω(err).Should(HaveOccurred())
	})
})
