// Package seed loads a YAML catalog and back-office account into a fresh
// database.
package seed

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/angelmondragon/groceryhub-backend/internal/categories"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
)

type File struct {
	Admin      *Admin     `yaml:"admin"`
	Categories []Category `yaml:"categories"`
	Products   []Product  `yaml:"products"`
	Customers  []Customer `yaml:"customers"`
}

// Admin is provisioned by email. PasswordEnv names an environment variable
// read when Password is empty.
type Admin struct {
	Email       string `yaml:"email"`
	Name        string `yaml:"name"`
	Password    string `yaml:"password"`
	PasswordEnv string `yaml:"password_env"`
	Role        string `yaml:"role"`
}

type Category struct {
	Name        string     `yaml:"name"`
	Slug        string     `yaml:"slug"`
	Description string     `yaml:"description"`
	SortOrder   int        `yaml:"sort_order"`
	Children    []Category `yaml:"children"`
}

// Product references its category by slug.
type Product struct {
	ItemCode    string `yaml:"item_code"`
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	Unit        string `yaml:"unit"`
	Price       string `yaml:"price"`
	Stock       int    `yaml:"stock"`
}

type Customer struct {
	Name          string `yaml:"name"`
	Phone         string `yaml:"phone"`
	Email         string `yaml:"email"`
	Address       string `yaml:"address"`
	WhatsAppOptIn *bool  `yaml:"whatsapp_opt_in"`
}

func (c Category) slug() string {
	if s := strings.TrimSpace(c.Slug); s != "" {
		return s
	}
	return categories.Slugify(c.Name)
}

func (a Admin) password() string {
	if a.Password != "" {
		return a.Password
	}
	if a.PasswordEnv != "" {
		return os.Getenv(a.PasswordEnv)
	}
	return ""
}

// Load reads a seed file from disk.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file File
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate reports every problem in the document at once.
func (f *File) Validate() error {
	var errs error
	if f.Admin != nil {
		if strings.TrimSpace(f.Admin.Email) == "" {
			errs = multierr.Append(errs, fmt.Errorf("admin: email is required"))
		}
		if f.Admin.password() == "" {
			errs = multierr.Append(errs, fmt.Errorf("admin: password or password_env is required"))
		}
	}

	slugs := map[string]bool{}
	var walk func(path string, list []Category)
	walk = func(path string, list []Category) {
		for i, c := range list {
			where := fmt.Sprintf("%s[%d]", path, i)
			if strings.TrimSpace(c.Name) == "" {
				errs = multierr.Append(errs, fmt.Errorf("%s: name is required", where))
				continue
			}
			slug := c.slug()
			if slugs[slug] {
				errs = multierr.Append(errs, fmt.Errorf("%s: duplicate slug %q", where, slug))
			}
			slugs[slug] = true
			walk(where+".children", c.Children)
		}
	}
	walk("categories", f.Categories)

	codes := map[string]bool{}
	for i, p := range f.Products {
		where := fmt.Sprintf("products[%d]", i)
		code := strings.TrimSpace(p.ItemCode)
		switch {
		case code == "":
			errs = multierr.Append(errs, fmt.Errorf("%s: item_code is required", where))
		case codes[code]:
			errs = multierr.Append(errs, fmt.Errorf("%s: duplicate item_code %q", where, code))
		}
		codes[code] = true
		if strings.TrimSpace(p.Name) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: name is required", where))
		}
		if strings.TrimSpace(p.Category) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: category is required", where))
		}
		if _, err := enums.ParseProductUnit(p.Unit); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", where, err))
		}
		price, err := decimal.NewFromString(strings.TrimSpace(p.Price))
		if err != nil || !price.IsPositive() {
			errs = multierr.Append(errs, fmt.Errorf("%s: price must be a positive decimal", where))
		}
		if p.Stock < 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s: stock cannot be negative", where))
		}
	}

	for i, c := range f.Customers {
		where := fmt.Sprintf("customers[%d]", i)
		if strings.TrimSpace(c.Name) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: name is required", where))
		}
		if strings.TrimSpace(c.Phone) == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: phone is required", where))
		}
	}
	return errs
}
