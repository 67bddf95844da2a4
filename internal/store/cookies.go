package store

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/buntdb"
)

type storedCookie struct {
	Origin   string    `json:"origin"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// CookieJar is an http.CookieJar that mirrors every cookie the backend sets
// into the store, so the ambient access and refresh credentials outlive the
// process.
type CookieJar struct {
	store  *Store
	logger zerolog.Logger
	mu     sync.RWMutex
	jar    *cookiejar.Jar
}

// CookieJar returns a jar preloaded with the cookies persisted in the store
func (s *Store) CookieJar(logger zerolog.Logger) (*CookieJar, error) {
	jar, _ := cookiejar.New(nil)
	j := &CookieJar{
		store:  s,
		logger: logger.With().Str("component", "cookiejar").Logger(),
		jar:    jar,
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *CookieJar) load() error {
	var stored []storedCookie
	err := j.store.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(cookiePrefix+"*", func(_, value string) bool {
			var sc storedCookie
			if err := json.Unmarshal([]byte(value), &sc); err != nil {
				j.logger.Warn().Err(err).Msg("Skipping unreadable persisted cookie")
				return true
			}
			stored = append(stored, sc)
			return true
		})
	})
	if err != nil {
		return err
	}

	for _, sc := range stored {
		u, err := url.Parse(sc.Origin)
		if err != nil {
			continue
		}
		j.jar.SetCookies(u, []*http.Cookie{{
			Name:     sc.Name,
			Value:    sc.Value,
			Path:     sc.Path,
			Domain:   sc.Domain,
			Expires:  sc.Expires,
			Secure:   sc.Secure,
			HttpOnly: sc.HttpOnly,
		}})
	}
	j.logger.Debug().Int("cookies", len(stored)).Msg("Loaded persisted cookies")
	return nil
}

// SetCookies implements http.CookieJar
func (j *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	j.jar.SetCookies(u, cookies)
	j.mu.RUnlock()

	origin := (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
	err := j.store.db.Update(func(tx *buntdb.Tx) error {
		for _, c := range cookies {
			key := cookiePrefix + u.Host + ":" + c.Name
			expires := c.Expires
			if c.MaxAge > 0 {
				expires = time.Now().Add(time.Duration(c.MaxAge) * time.Second)
			}
			if c.MaxAge < 0 || (!expires.IsZero() && !expires.After(time.Now())) {
				if _, err := tx.Delete(key); err != nil && err != buntdb.ErrNotFound {
					return err
				}
				continue
			}

			data, err := json.Marshal(storedCookie{
				Origin:   origin,
				Name:     c.Name,
				Value:    c.Value,
				Path:     c.Path,
				Domain:   c.Domain,
				Expires:  expires,
				Secure:   c.Secure,
				HttpOnly: c.HttpOnly,
			})
			if err != nil {
				return err
			}

			var opts *buntdb.SetOptions
			if !expires.IsZero() {
				opts = &buntdb.SetOptions{Expires: true, TTL: time.Until(expires)}
			}
			if _, _, err := tx.Set(key, string(data), opts); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		j.logger.Error().Err(err).Msg("Failed to persist cookies")
	}
}

// Cookies implements http.CookieJar
func (j *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

// Clear forgets every cookie, in memory and on disk
func (j *CookieJar) Clear() error {
	fresh, _ := cookiejar.New(nil)
	j.mu.Lock()
	j.jar = fresh
	j.mu.Unlock()

	n, err := j.store.deletePrefix(cookiePrefix)
	if err != nil {
		return err
	}
	j.logger.Debug().Int("cookies", n).Msg("Cleared cookies")
	return nil
}
