package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"postcodejp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func sjis(t *testing.T, s string) []byte {
	t.Helper()
	out, err := japanese.ShiftJIS.NewEncoder().String(s)
	require.NoError(t, err)
	return []byte(out)
}

func collectAddresses(t *testing.T, dir string) ([]models.AddressRecord, []error) {
	t.Helper()
	var recs []models.AddressRecord
	var errs []error
	for rec, err := range NewAddressParser().ParseDirectory(dir) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, errs
}

const chiyodaRow = `13101,"","1000001","トウキヨウト","チヨダク","チヨダ","東京都","千代田区","千代田",0,0,0,0,0,0`

func TestAddressParser_ParseDirectory(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		expected []models.AddressRecord
	}{
		{
			name:  "single row",
			files: map[string]string{"utf_ken_all.csv": chiyodaRow + "\n"},
			expected: []models.AddressRecord{
				{
					LocalGovCode:   "13101",
					PostalCode:     "1000001",
					PrefectureKana: "トウキヨウト",
					CityKana:       "チヨダク",
					TownKana:       "チヨダ",
					Prefecture:     "東京都",
					City:           "千代田区",
					Town:           "千代田",
				},
			},
		},
		{
			name: "flags parsed and defaulted",
			files: map[string]string{
				"a.csv": `01101,"060  ","0600000","ホツカイドウ","サツポロシチユウオウク","イカニケイサイガナイバアイ","北海道","札幌市中央区","以下に掲載がない場合",1,,x,1,2,6` + "\n",
			},
			expected: []models.AddressRecord{
				{
					LocalGovCode:    "01101",
					OldPostalCode:   "060",
					PostalCode:      "0600000",
					PrefectureKana:  "ホツカイドウ",
					CityKana:        "サツポロシチユウオウク",
					TownKana:        "イカニケイサイガナイバアイ",
					Prefecture:      "北海道",
					City:            "札幌市中央区",
					Town:            "以下に掲載がない場合",
					MultiPostalFlag: 1,
					KoazaBanchiFlag: 0,
					ChomeFlag:       0,
					MultiTownFlag:   1,
					UpdateFlag:      2,
					ChangeReason:    6,
				},
			},
		},
		{
			name: "short rows are skipped",
			files: map[string]string{
				"a.csv": "13101,\"\",\"1000001\"\n" + chiyodaRow + "\n",
			},
			expected: []models.AddressRecord{
				{
					LocalGovCode:   "13101",
					PostalCode:     "1000001",
					PrefectureKana: "トウキヨウト",
					CityKana:       "チヨダク",
					TownKana:       "チヨダ",
					Prefecture:     "東京都",
					City:           "千代田区",
					Town:           "千代田",
				},
			},
		},
		{
			name: "byte order mark is stripped",
			files: map[string]string{
				"a.csv": "\ufeff" + chiyodaRow + "\n",
			},
			expected: []models.AddressRecord{
				{
					LocalGovCode:   "13101",
					PostalCode:     "1000001",
					PrefectureKana: "トウキヨウト",
					CityKana:       "チヨダク",
					TownKana:       "チヨダ",
					Prefecture:     "東京都",
					City:           "千代田区",
					Town:           "千代田",
				},
			},
		},
		{
			name: "extension match ignores case and other files",
			files: map[string]string{
				"UTF_KEN_ALL.CSV": chiyodaRow + "\n",
				"readme.txt":      chiyodaRow + "\n",
			},
			expected: []models.AddressRecord{
				{
					LocalGovCode:   "13101",
					PostalCode:     "1000001",
					PrefectureKana: "トウキヨウト",
					CityKana:       "チヨダク",
					TownKana:       "チヨダ",
					Prefecture:     "東京都",
					City:           "千代田区",
					Town:           "千代田",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, []byte(content))
			}

			recs, errs := collectAddresses(t, dir)

			assert.Empty(t, errs)
			assert.Equal(t, tt.expected, recs)
		})
	}
}

func TestAddressParser_FlagsAlwaysNonNegativeDefaults(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for _, flags := range []string{",,,,,", "a,b,c,d,e,f", "0,1,0,1,0,1", " 1 , 2 ,,, , ", "-1,70000,0,0,0,-3", "10,9,1,1,2,6"} {
		b.WriteString(`13101,"","1000001","ト","チ","チ","東京都","千代田区","千代田",` + flags + "\n")
	}
	writeFile(t, dir, "a.csv", []byte(b.String()))

	recs, errs := collectAddresses(t, dir)
	require.Empty(t, errs)
	require.Len(t, recs, 6)

	assert.Zero(t, recs[0].MultiPostalFlag)
	assert.Zero(t, recs[1].ChangeReason)
	assert.Equal(t, 1, recs[2].KoazaBanchiFlag)
	assert.Equal(t, 1, recs[3].MultiPostalFlag)
	assert.Equal(t, 2, recs[3].KoazaBanchiFlag)
	assert.Zero(t, recs[3].ChangeReason)

	assert.Zero(t, recs[4].MultiPostalFlag)
	assert.Zero(t, recs[4].KoazaBanchiFlag)
	assert.Zero(t, recs[4].ChangeReason)

	assert.Zero(t, recs[5].MultiPostalFlag)
	assert.Equal(t, 9, recs[5].KoazaBanchiFlag)
	assert.Equal(t, 6, recs[5].ChangeReason)

	for _, rec := range recs {
		for _, v := range []int{rec.MultiPostalFlag, rec.KoazaBanchiFlag, rec.ChomeFlag, rec.MultiTownFlag, rec.UpdateFlag, rec.ChangeReason} {
			assert.GreaterOrEqual(t, v, 0)
			assert.LessOrEqual(t, v, MaxFlag)
		}
	}
}

func TestFlag(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{input: "0", expected: 0},
		{input: "1", expected: 1},
		{input: " 6 ", expected: 6},
		{input: "9", expected: 9},
		{input: "", expected: 0},
		{input: "x", expected: 0},
		{input: "-1", expected: 0},
		{input: "10", expected: 0},
		{input: "70000", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, flag(tt.input))
		})
	}
}

func TestAddressParser_SinglePass(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", []byte(chiyodaRow+"\n"))

	seq := NewAddressParser().ParseDirectory(dir)

	count := 0
	for _, err := range seq {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 1, count)

	var second []error
	for _, err := range seq {
		second = append(second, err)
	}
	require.Len(t, second, 1)
	assert.ErrorIs(t, second[0], ErrStreamConsumed)
}

func TestAddressParser_MissingDirectory(t *testing.T) {
	recs, errs := collectAddresses(t, filepath.Join(t.TempDir(), "missing"))

	assert.Empty(t, recs)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], os.ErrNotExist)
}

const officeRow = `13101,"ﾆﾂﾎﾟﾝﾕｳｾｲ ｶﾌﾞｼｷｶﾞｲｼﾔ","日本郵政　株式会社","東京都","千代田区","大手町","２丁目３番１号","1008791","100  ","銀座",0,0,0`

func TestOfficeParser_ParseDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "JIGYOSYO.CSV", sjis(t, officeRow+"\r\n"))

	var recs []models.OfficeRecord
	for rec, err := range NewOfficeParser().ParseDirectory(dir) {
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	require.Len(t, recs, 1)
	assert.Equal(t, models.OfficeRecord{
		LocalGovCode:  "13101",
		OfficeKana:    "ﾆﾂﾎﾟﾝﾕｳｾｲ ｶﾌﾞｼｷｶﾞｲｼﾔ",
		OfficeName:    "日本郵政　株式会社",
		Prefecture:    "東京都",
		City:          "千代田区",
		Town:          "大手町",
		AddressDetail: "２丁目３番１号",
		PostalCode:    "1008791",
		OldPostalCode: "100",
		PostOffice:    "銀座",
	}, recs[0])
}

func TestOfficeParser_VendorFallback(t *testing.T) {
	dir := t.TempDir()
	row := `13101,"ｶ)ﾏﾙｲﾁ","株式会社①商事","東京都","千代田区","丸の内","１番１号","1008799","100  ","銀座",1,1,0`
	raw := sjis(t, row+"\r\n")
	writeFile(t, dir, "a.csv", raw)

	_, enc, err := decodeWith("a.csv", raw, OfficeCodecs)
	require.NoError(t, err)
	assert.Equal(t, "cp932", enc)

	var recs []models.OfficeRecord
	for rec, err := range NewOfficeParser().ParseDirectory(dir) {
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	require.Len(t, recs, 1)
	assert.Equal(t, "株式会社①商事", recs[0].OfficeName)
	assert.Equal(t, models.OfficeTypePOBox, recs[0].OfficeType)
	assert.Equal(t, 1, recs[0].MultiNumber)
}

func TestOfficeParser_UndecodableFileSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.csv", []byte("13101,\xff\xff\xff,broken\r\n"))
	writeFile(t, dir, "good.csv", sjis(t, officeRow+"\r\n"))

	var recs []models.OfficeRecord
	var errs []error
	for rec, err := range NewOfficeParser().ParseDirectory(dir) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}

	require.Len(t, errs, 1)
	var decErr *DecodeError
	require.ErrorAs(t, errs[0], &decErr)
	assert.Equal(t, filepath.Join(dir, "bad.csv"), decErr.File)
	assert.Equal(t, []string{"shift_jis", "cp932"}, decErr.Tried)
	require.Len(t, recs, 1)
	assert.Equal(t, "1008791", recs[0].PostalCode)
}

func TestOfficeParser_OutOfRangeFlagsDefaultToZero(t *testing.T) {
	dir := t.TempDir()
	row := `13101,"ﾆﾂﾎﾟﾝﾕｳｾｲ","日本郵政","東京都","千代田区","大手町","２丁目３番１号","1008791","100  ","銀座",-1,70000,12`
	writeFile(t, dir, "JIGYOSYO.CSV", sjis(t, row+"\r\n"))

	var recs []models.OfficeRecord
	for rec, err := range NewOfficeParser().ParseDirectory(dir) {
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	require.Len(t, recs, 1)
	assert.Zero(t, recs[0].OfficeType)
	assert.Zero(t, recs[0].MultiNumber)
	assert.Zero(t, recs[0].ChangeReason)
}

func TestDecodeShiftJISStrict(t *testing.T) {
	tests := []struct {
		name        string
		input       []byte
		expectError bool
	}{
		{name: "ascii", input: []byte("abc,123"), expectError: false},
		{name: "jis x 0208 kanji", input: sjis(t, "東京都"), expectError: false},
		{name: "half-width katakana", input: sjis(t, "ｶﾌﾞｼｷ"), expectError: false},
		{name: "nec special character", input: sjis(t, "①"), expectError: true},
		{name: "invalid lead byte", input: []byte{0xff}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeShiftJISStrict(tt.input)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
