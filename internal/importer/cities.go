package importer

import "postcodejp/internal/models"

// CityPolicy decides which name a city keeps when address records disagree.
// It receives the city already collected and a newly observed candidate.
type CityPolicy func(existing, candidate models.City) models.City

// FirstSeenWins keeps the name and reading of the first record observed for a
// local-government code.
func FirstSeenWins(existing, _ models.City) models.City { return existing }

// LastSeenWins keeps the most recently observed name and reading.
func LastSeenWins(_, candidate models.City) models.City { return candidate }

// cityCollector derives the deduplicated city dimension from an address stream.
type cityCollector struct {
	policy CityPolicy
	byCode map[string]models.City
	order  []string
}

func newCityCollector(policy CityPolicy) *cityCollector {
	if policy == nil {
		policy = FirstSeenWins
	}
	return &cityCollector{policy: policy, byCode: make(map[string]models.City)}
}

// observe records the city of rec. Records without a usable prefecture code
// cannot reference the prefecture table and are ignored.
func (c *cityCollector) observe(rec models.AddressRecord) {
	prefCode := rec.PrefectureCode()
	if len(rec.LocalGovCode) != 5 || !models.IsPrefectureCode(prefCode) {
		return
	}
	candidate := models.City{
		Code:           rec.LocalGovCode,
		PrefectureCode: prefCode,
		Name:           rec.City,
		NameKana:       rec.CityKana,
	}
	existing, ok := c.byCode[rec.LocalGovCode]
	if !ok {
		c.byCode[rec.LocalGovCode] = candidate
		c.order = append(c.order, rec.LocalGovCode)
		return
	}
	c.byCode[rec.LocalGovCode] = c.policy(existing, candidate)
}

// cities returns the collected rows in first-seen order.
func (c *cityCollector) cities() []models.City {
	out := make([]models.City, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.byCode[code])
	}
	return out
}
