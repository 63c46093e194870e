package borrowers

// Borrower is one row of the uploaded loan book.
//
// JSON field names follow the upload file's column headers; every consumer
// (event channel, dispatch payload, UI) keys borrowers by Phone.
//
// Lifecycle invariant: borrowers are only ever created by a full-list
// replace. There is no field-by-field mutation path.
type Borrower struct {
	Phone             string  `json:"Mobile_No"`
	FirstName         string  `json:"F_Name"`
	LastName          string  `json:"L_Name"`
	CurrentBalance    float64 `json:"Current_balance"`
	InstallmentAmount float64 `json:"Installment_Amount"`
	LastPaymentDate   string  `json:"Date_of_last_payment"`

	// ChannelPreference is voice, whatsapp, or empty (unspecified).
	// Dispatch defaults an empty preference to voice.
	ChannelPreference string `json:"Channel_Preference,omitempty"`
}

const (
	ChannelVoice    = "voice"
	ChannelWhatsApp = "whatsapp"
)
