package chat

import (
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/masomo-chat/core"
)

var (
	// room password policy
	pwdNoSpaceTag  = "roompwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "roompwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim      = .7
	pwdNameSimTag  = "roompwdtoosim"
	pwdNameSimText = "password cannot be similar to the room name"
)

// InitValidators registers the chat struct validations and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(newRoomStructValidation, NewRoom{})
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdNameSimTag, pwdNameSimText)
}

// newRoomStructValidation applies the room password policy:
// - no whitespace
// - not all numeric
// - not similar to the room name
func newRoomStructValidation(sl validator.StructLevel) {
	nr, ok := sl.Current().Interface().(NewRoom)
	if !ok || nr.Password == "" {
		return
	}
	reportErr := func(tag string) {
		sl.ReportError(nr.Password, "password", "Password", tag, "")
	}

	digits := 0
	for _, char := range nr.Password {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digits++
		}
	}
	if digits == len([]rune(nr.Password)) {
		reportErr(pwdNotAllNumTag)
		return
	}

	name := strings.ToLower(nr.Name)
	if name == "" {
		return
	}
	ratio := difflib.NewMatcher(strings.Split(strings.ToLower(nr.Password), ""), strings.Split(name, "")).QuickRatio()
	if ratio >= pwdMaxSim {
		reportErr(pwdNameSimTag)
	}
}
