/**
 * @description
 * Pure mapping from an admin-form submit result to display state. A success
 * closes the form; a rejection keeps it open and shows the server's message
 * verbatim, never translated.
 */
package app

import "github.com/tellerworks/atm-service/pkg/customerclient"

// FormState is the renderable state of the admin customer form.
type FormState struct {
	Open         bool   `json:"open"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ApplySubmitResult maps a submit outcome onto the form state.
func ApplySubmitResult(res customerclient.SubmitResult) FormState {
	if res.OK {
		return FormState{Open: false}
	}
	return FormState{Open: true, ErrorMessage: res.Message}
}
