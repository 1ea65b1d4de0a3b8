// Package rpcapi defines the CatalogService wire contract shared by the
// server and the client. Requests and responses travel as
// google.protobuf.Struct messages; the Go types below give them shape.
package rpcapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// MaxExactInt is the largest integer magnitude a Struct number carries
// without rounding.
const MaxExactInt = 1 << 53

// ErrNumberRange is returned when a number would not survive the Struct
// encoding exactly.
var ErrNumberRange = errors.New("number exceeds 2^53")

const ServiceName = "catalogkeeper.CatalogService"

const (
	MethodPing          = "Ping"
	MethodRegister      = "Register"
	MethodLogin         = "Login"
	MethodRefreshToken  = "RefreshToken"
	MethodLogout        = "Logout"
	MethodListProducts  = "ListProducts"
	MethodGetProduct    = "GetProduct"
	MethodCreateProduct = "CreateProduct"
	MethodUpdateProduct = "UpdateProduct"
	MethodDeleteProduct = "DeleteProduct"
)

// FullMethod returns the gRPC path for method, e.g.
// "/catalogkeeper.CatalogService/Login".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// PublicMethods do not require an access token.
var PublicMethods = map[string]bool{
	FullMethod(MethodPing):         true,
	FullMethod(MethodRegister):     true,
	FullMethod(MethodLogin):        true,
	FullMethod(MethodRefreshToken): true,
	FullMethod(MethodLogout):       true,
}

type Empty struct{}

type PingReply struct {
	Status string `json:"status"`
}

type Registration struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       int64  `json:"user_id"`
	Role         string `json:"role"`
	DisplayName  string `json:"display_name"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type IDRequest struct {
	ID int64 `json:"id"`
}

// ProductInput is the body of CreateProduct and UpdateProduct. ID is
// ignored on create.
type ProductInput struct {
	ID            int64  `json:"id,omitempty"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	PriceCents    int64  `json:"price_cents"`
	StockQuantity int64  `json:"stock_quantity"`
}

type Product struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	PriceCents    int64      `json:"price_cents"`
	StockQuantity int64      `json:"stock_quantity"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	CreatedByID   int64      `json:"created_by_id"`
	CreatedByName string     `json:"created_by_name"`
}

type ProductList struct {
	Products []Product `json:"products"`
}

// Encode converts v to a Struct through its JSON form. Numbers whose
// magnitude exceeds MaxExactInt fail with ErrNumberRange.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	m := map[string]any{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	if err := toFloats(m); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

// MustEncode is Encode for values that are known to be encodable.
func MustEncode(v any) *structpb.Struct {
	s, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode fills v from s. A nil Struct leaves v untouched. Numbers whose
// magnitude exceeds MaxExactInt fail with ErrNumberRange.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	m := s.AsMap()
	if err := checkFloats(m); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// toFloats replaces every json.Number in x with its float64 value in place.
func toFloats(x any) error {
	switch t := x.(type) {
	case map[string]any:
		for k, e := range t {
			if n, ok := e.(json.Number); ok {
				f, err := numberValue(n)
				if err != nil {
					return fmt.Errorf("%s: %w", k, err)
				}
				t[k] = f
				continue
			}
			if err := toFloats(e); err != nil {
				return err
			}
		}
	case []any:
		for i, e := range t {
			if n, ok := e.(json.Number); ok {
				f, err := numberValue(n)
				if err != nil {
					return fmt.Errorf("[%d]: %w", i, err)
				}
				t[i] = f
				continue
			}
			if err := toFloats(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func numberValue(n json.Number) (float64, error) {
	if i, err := n.Int64(); err == nil {
		if i > MaxExactInt || i < -MaxExactInt {
			return 0, fmt.Errorf("%w: %s", ErrNumberRange, n)
		}
		return float64(i), nil
	}
	f, err := n.Float64()
	if err != nil || math.Abs(f) > MaxExactInt {
		return 0, fmt.Errorf("%w: %s", ErrNumberRange, n)
	}
	return f, nil
}

func checkFloats(x any) error {
	switch t := x.(type) {
	case float64:
		if math.Abs(t) > MaxExactInt {
			return fmt.Errorf("%w: %g", ErrNumberRange, t)
		}
	case map[string]any:
		for k, e := range t {
			if err := checkFloats(e); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
	case []any:
		for _, e := range t {
			if err := checkFloats(e); err != nil {
				return err
			}
		}
	}
	return nil
}
