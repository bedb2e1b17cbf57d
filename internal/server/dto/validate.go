// Defines the validation interface for requests.

package dto

// Validatable is implemented by request types that can validate their fields.
// The Wrap function in the server package uses this interface as a type
// constraint so every routed request type provides validation.
type Validatable interface {
	Validate() error
}
