package domain

// RuleError is a plain string-backed error, matching the stabilized
// form of the original implementation's GameError(&'static str): the
// message is the wire payload as well as the Go error text.
type RuleError string

func (e RuleError) Error() string { return string(e) }

const (
	ErrNotInSetup          RuleError = "can only choose three faceup cards during setup"
	ErrNotInPlay           RuleError = "can only play cards during the play phase"
	ErrFaceupNotOwned      RuleError = "chosen three faceup cards are not in hand / already faceup cards"
	ErrEmptyPlay           RuleError = "have to play at least one card"
	ErrFaceDownWithCards   RuleError = "can't choose any cards when playing from the face down three"
	ErrMismatchedRanks     RuleError = "can only play multiple cards if each card has the same value"
	ErrCardsNotOwned       RuleError = "can only play cards that you have"
	ErrGameComplete        RuleError = "game is already complete"
)
