package semtable

import (
	"fmt"
	"os"
	"time"

	"github.com/ghetzel/go-stockutil/typeutil"
	"github.com/ghodss/yaml"
)

var DefaultConfigFile = `semtable.yml`

// Config is the YAML-loadable client configuration.
type Config struct {
	// The root URL of the enrichment backend.
	URL string `json:"url"`

	// Credentials used to sign in.  Ignored when a token is given directly.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// A pre-obtained bearer token, bypassing sign-in.
	Token string `json:"token,omitempty"`

	// Default request timeout; accepts durations ("45s") or numeric seconds.
	Timeout interface{} `json:"timeout,omitempty"`

	// Whether to randomize the User-Agent header on outbound requests.
	RandomizeUserAgent bool `json:"randomize_user_agent,omitempty"`
}

func LoadConfig(data []byte) (Config, error) {
	rv := Config{}
	err := yaml.Unmarshal(data, &rv)
	return rv, err
}

// LoadConfigFile loads configuration from a YAML file.  A missing file is
// not an error; it yields an empty configuration.
func LoadConfigFile(path string) (Config, error) {
	if data, err := os.ReadFile(path); err == nil {
		return LoadConfig(data)
	} else if os.IsNotExist(err) {
		return Config{}, nil
	} else {
		return Config{}, err
	}
}

// Client builds a Client from the configuration.
func (self Config) Client() (*Client, error) {
	if self.URL == `` {
		return nil, fmt.Errorf("a backend URL is required")
	}

	var tokens TokenSource

	if self.Token != `` {
		tokens = StaticToken(self.Token)
	} else if self.Username != `` {
		tokens = NewCredentialTokenSource(self.URL, self.Username, self.Password)
	} else {
		return nil, fmt.Errorf("either a token or a username and password are required")
	}

	client, err := NewClient(self.URL, tokens)

	if err != nil {
		return nil, err
	}

	if timeout := typeutil.V(self.Timeout).Duration(); timeout > 0 {
		if timeout < time.Microsecond {
			// probably given as numeric seconds
			timeout = timeout * time.Second
		}

		client.Timeout = timeout
	}

	client.RandomizeUserAgent = self.RandomizeUserAgent

	return client, nil
}
