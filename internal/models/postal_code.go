package models

import "time"

// AddressRecord is one row of the national address postal-code dataset (KEN_ALL).
// Several town rows may share one postal code; see AddressKey for the natural key.
type AddressRecord struct {
	ID              int64  `json:"id,omitempty"`
	LocalGovCode    string `json:"local_gov_code"`
	OldPostalCode   string `json:"old_postal_code"`
	PostalCode      string `json:"postal_code"`
	PrefectureKana  string `json:"prefecture_kana"`
	CityKana        string `json:"city_kana"`
	TownKana        string `json:"town_kana"`
	Prefecture      string `json:"prefecture"`
	City            string `json:"city"`
	Town            string `json:"town"`
	MultiPostalFlag int    `json:"multi_postal_flag"`
	KoazaBanchiFlag int    `json:"koaza_banchi_flag"`
	ChomeFlag       int    `json:"chome_flag"`
	MultiTownFlag   int    `json:"multi_town_flag"`
	UpdateFlag      int    `json:"update_flag"`
	ChangeReason    int    `json:"change_reason"`
}

// AddressKey is the natural key used to match address rows when applying a delete diff.
type AddressKey struct {
	PostalCode   string
	LocalGovCode string
	Town         string
}

// Key returns the natural key of the record.
func (r AddressRecord) Key() AddressKey {
	return AddressKey{PostalCode: r.PostalCode, LocalGovCode: r.LocalGovCode, Town: r.Town}
}

// PrefectureCode returns the leading two digits of the local-government code.
func (r AddressRecord) PrefectureCode() string {
	if len(r.LocalGovCode) < 2 {
		return ""
	}
	return r.LocalGovCode[:2]
}

// Office types carried by OfficeRecord.OfficeType.
const (
	OfficeTypeBulkRecipient = 0
	OfficeTypePOBox         = 1
)

// OfficeRecord is a business office with its own dedicated postal code (JIGYOSYO).
type OfficeRecord struct {
	ID            int64  `json:"id,omitempty"`
	LocalGovCode  string `json:"local_gov_code"`
	OfficeKana    string `json:"office_kana"`
	OfficeName    string `json:"office_name"`
	Prefecture    string `json:"prefecture"`
	City          string `json:"city"`
	Town          string `json:"town"`
	AddressDetail string `json:"address_detail"`
	PostalCode    string `json:"postal_code"`
	OldPostalCode string `json:"old_postal_code"`
	PostOffice    string `json:"post_office"`
	OfficeType    int    `json:"office_type"`
	MultiNumber   int    `json:"multi_number"`
	ChangeReason  int    `json:"change_reason"`
}

type Prefecture struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	NameKana string `json:"name_kana"`
}

// City is derived from address records during import, keyed by local-government code.
type City struct {
	Code           string `json:"code"`
	PrefectureCode string `json:"prefecture_code"`
	Name           string `json:"name"`
	NameKana       string `json:"name_kana"`
}

// PostalCodePage is one page of a keyword search.
type PostalCodePage struct {
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	Results []AddressRecord `json:"results"`
}

// SyncStatus summarises the ledger and store for the admin status query.
type SyncStatus struct {
	IsSyncing        bool      `json:"is_syncing"`
	LastSync         *SyncRun  `json:"last_sync"`
	PostalCodesCount int64     `json:"postal_codes_count"`
	OfficeCodesCount int64     `json:"office_codes_count"`
	CheckedAt        time.Time `json:"checked_at"`
}
