package manifest

import (
	"fmt"
	"io"
	"strings"
)

// Target is one entry of the /json listing.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	Description          string `json:"description"`
	DevtoolsFrontendURL  string `json:"devtoolsFrontendUrl"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

type Parameter struct {
	Name string `json:"name"`
}

type Command struct {
	Name       string      `json:"name"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Display renders the command as ".name(param1, param2)".
func (c Command) Display() string {
	names := make([]string, 0, len(c.Parameters))
	for _, p := range c.Parameters {
		names = append(names, p.Name)
	}
	return fmt.Sprintf(".%s(%s)", c.Name, strings.Join(names, ", "))
}

type Domain struct {
	Domain   string    `json:"domain"`
	Commands []Command `json:"commands"`
}

// protocolDocument is the body of /json/protocol.
type protocolDocument struct {
	Domains []Domain `json:"domains"`
}

// WriteDomains writes the capability listing, one "* Domain" line per domain followed by an indented line per command.
func WriteDomains(w io.Writer, domains []Domain) error {
	if _, err := fmt.Fprintln(w, "available execution domains:"); err != nil {
		return err
	}
	for _, d := range domains {
		if _, err := fmt.Fprintf(w, "* %s\n", d.Domain); err != nil {
			return err
		}
		for _, c := range d.Commands {
			if _, err := fmt.Fprintf(w, "  %s\n", c.Display()); err != nil {
				return err
			}
		}
	}
	return nil
}
