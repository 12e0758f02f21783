package article

import "errors"

var ErrIssue = errors.New("unknown issue")

// Passwords maps an issue number to the password its viewer checks.
// Entry 0 is never used.
type Passwords [5]string

// DefaultPasswords can be replaced from the configuration file.
var DefaultPasswords = Passwords{"", "TAURUS", "NEBULA", "SPECTRAL", "ORIONIS"}

func (p *Passwords) Password(issue int) (string, error) {
	if err := CheckIssue(issue); err != nil {
		return "", err
	}
	if p[issue] == "" {
		return "", ErrPassword
	}
	return p[issue], nil
}

// Merge overrides entries of p with the non-empty entries of m.
func (p *Passwords) Merge(m map[int]string) error {
	for issue, pw := range m {
		if err := CheckIssue(issue); err != nil {
			return err
		}
		if pw != "" {
			p[issue] = pw
		}
	}
	return nil
}
