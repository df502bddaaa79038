package flow_test

import (
	"casework/domain/flow"
	"casework/testinfra"
	"testing"

	. "github.com/onsi/gomega"
)

func TestLoadCatalog(t *testing.T) {
	RegisterTestingT(t)

	creations, err := flow.LoadCatalog()
	Expect(err).To(BeNil())
	Expect(creations).To(HaveLen(2))

	appointment := creations[1]
	Expect(appointment.Name).To(Equal("Bestellungsprozess"))
	Expect(appointment.ShortCode).To(Equal("BES"))
	Expect(appointment.Active).To(BeTrue())
	Expect(appointment.Steps).To(HaveLen(8))
	for i, s := range appointment.Steps {
		Expect(s.OrderIndex).To(Equal(i + 1))
		Expect(s.Optional).To(Equal(i == 1))
	}
	Expect(appointment.Steps[0]).To(Equal(flow.StepDefinitionCreation{OrderIndex: 1, Name: "Antrag prüfen",
		Description: "Prüfung der eingereichten Unterlagen und Voraussetzungen für die Bestellung. Vollständigkeit " +
			"der Dokumente und formale Anforderungen müssen erfüllt sein.",
		DefaultRole: "sachbearbeiter", EstimatedDays: 5}))

	Expect(creations[0].Name).To(Equal("Besetzungsverfahren"))
	Expect(creations[0].Steps).To(HaveLen(10))
}

func TestSeedTemplates(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase
	defer func() { teardown(t, testDatabase) }()
	registry, _ := setup(t, &testDatabase)

	creations, err := flow.LoadCatalog()
	Expect(err).To(BeNil())

	created, err := registry.SeedTemplates(creations, admin)
	Expect(err).To(BeNil())
	Expect(created).To(Equal(2))

	created, err = registry.SeedTemplates(creations, admin)
	Expect(err).To(BeNil())
	Expect(created).To(BeZero())

	templates, err := registry.QueryTemplates(&flow.TemplateQuery{Name: "Bestellung"}, clerk)
	Expect(err).To(BeNil())
	Expect(templates).To(HaveLen(1))
	detail, err := registry.DetailTemplate(templates[0].ID, clerk)
	Expect(err).To(BeNil())
	Expect(detail.Steps).To(HaveLen(8))
	Expect(detail.Steps[1].Name).To(Equal("Dokumente nachfordern"))
}
