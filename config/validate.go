package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"golang.org/x/text/language"

	"github.com/minios-linux/locsync/skip"
)

func init() {
	// Report fields by their .locsync.yaml names.
	validation.ErrorTag = "yaml"
}

// Validate checks the whole config. Any failure is a configuration error
// and stops the tool before translation work starts.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseLang, validation.Required, validation.By(languageTag)),
		validation.Field(&c.TargetLangs,
			validation.Required,
			validation.Each(validation.Required, validation.By(languageTag)),
			validation.By(c.distinctTargets),
		),
		validation.Field(&c.LocalesDir, validation.Required),
		validation.Field(&c.Skip, validation.By(skipPatterns)),
		validation.Field(&c.Provider),
		validation.Field(&c.Concurrency, validation.Min(1)),
		validation.Field(&c.BatchTokens, validation.Min(1)),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// Validate checks the provider block.
func (p Provider) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.BaseURL, is.URL),
		validation.Field(&p.Model, validation.Required),
		validation.Field(&p.Proxy, is.URL),
		validation.Field(&p.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&p.MaxRetries, validation.Min(0)),
		validation.Field(&p.Temperature, validation.Min(0.0), validation.Max(2.0)),
	)
}

func languageTag(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := language.Parse(s); err != nil {
		return fmt.Errorf("%q is not a valid BCP-47 language tag", s)
	}
	return nil
}

func (c *Config) distinctTargets(value any) error {
	langs, _ := value.([]string)
	seen := make(map[string]bool, len(langs))
	for _, l := range langs {
		if l == c.BaseLang {
			return fmt.Errorf("%q is the base language", l)
		}
		if seen[l] {
			return fmt.Errorf("%q is listed twice", l)
		}
		seen[l] = true
	}
	return nil
}

func skipPatterns(value any) error {
	patterns, _ := value.([]string)
	if _, err := skip.New(patterns); err != nil {
		return err
	}
	return nil
}
