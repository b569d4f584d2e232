package models

// ActivationCode is a one-time code minted by the issuance backend.
// It lives only for the duration of one delivery attempt and is never persisted.
type ActivationCode struct {
	Code          string
	RedemptionURL string
	PackageName   string
}

// String masks the secret so codes never end up in logs verbatim.
func (c ActivationCode) String() string {
	masked := "****"
	if r := []rune(c.Code); len(r) > 4 {
		masked = string(r[:2]) + "****" + string(r[len(r)-2:])
	}
	return masked + " (" + c.RedemptionURL + ")"
}
