package semtable

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ghetzel/go-stockutil/log"
	"github.com/golang-jwt/jwt/v5"
)

var DefaultTokenLifetime = time.Hour
var DefaultSigninTimeout = 10 * time.Second

// A TokenSource supplies bearer tokens for authenticated API requests.
type TokenSource interface {
	Token() (string, error)
}

// StaticTokenSource wraps a fixed, externally-obtained token.
type StaticTokenSource struct {
	token string
}

func StaticToken(token string) *StaticTokenSource {
	return &StaticTokenSource{
		token: token,
	}
}

func (self *StaticTokenSource) Token() (string, error) {
	if self.token == `` {
		return ``, fmt.Errorf("no token provided")
	}

	return self.token, nil
}

// CredentialTokenSource signs in to the backend with a username and password,
// caches the token it receives, and signs in again once the token expires.
// The expiry is read from the token's "exp" claim; the signature is not
// verified because this client is not the verifying party.  Safe for use
// from multiple goroutines.
type CredentialTokenSource struct {
	SigninURL  string
	Username   string
	Password   string
	HTTPClient *http.Client
	lock       sync.Mutex
	token      string
	expiry     time.Time
}

func NewCredentialTokenSource(baseURL string, username string, password string) *CredentialTokenSource {
	return &CredentialTokenSource{
		SigninURL: strings.TrimSuffix(baseURL, `/`) + `/auth/signin`,
		Username:  username,
		Password:  password,
		HTTPClient: &http.Client{
			Timeout: DefaultSigninTimeout,
		},
	}
}

func (self *CredentialTokenSource) Token() (string, error) {
	self.lock.Lock()
	defer self.lock.Unlock()

	if self.token == `` || !time.Now().Before(self.expiry) {
		if err := self.refresh(); err != nil {
			return ``, err
		}
	}

	return self.token, nil
}

func (self *CredentialTokenSource) refresh() error {
	var body = bytes.NewBuffer(nil)

	if err := json.NewEncoder(body).Encode(map[string]string{
		`username`: self.Username,
		`password`: self.Password,
	}); err != nil {
		return err
	}

	request, err := http.NewRequest(http.MethodPost, self.SigninURL, body)

	if err != nil {
		return err
	}

	request.Header.Set(`Accept`, `application/json, text/plain, */*`)
	request.Header.Set(`Content-Type`, `application/json;charset=UTF-8`)

	if response, err := self.HTTPClient.Do(request); err == nil {
		defer response.Body.Close()
		data, err := ioutil.ReadAll(response.Body)

		if err != nil {
			return fmt.Errorf("signin response: %v", err)
		}

		if response.StatusCode >= 400 {
			self.token = ``
			self.expiry = time.Time{}
			return errorFromResponse(http.MethodPost, self.SigninURL, response.StatusCode, data)
		}

		var signin struct {
			Token string `json:"token"`
		}

		if err := json.Unmarshal(data, &signin); err != nil {
			return fmt.Errorf("signin response: %v", err)
		}

		if signin.Token == `` {
			return fmt.Errorf("signin response did not include a token")
		}

		self.token = signin.Token
		self.expiry = tokenExpiry(signin.Token)
		log.Debugf("signin: token obtained, expires %v", self.expiry)

		return nil
	} else {
		return fmt.Errorf("signin request failed: %v", err)
	}
}

func tokenExpiry(token string) time.Time {
	if parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{}); err == nil {
		if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	return time.Now().Add(DefaultTokenLifetime)
}
