package handler

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/coffeeshop/internal/domain/apperr"
	"github.com/xenking/coffeeshop/internal/domain/cart"
	"github.com/xenking/coffeeshop/internal/domain/catalog"
	"github.com/xenking/coffeeshop/internal/domain/search"
)

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeOptStr(e *jx.Encoder, s *string) {
	if s == nil {
		e.Null()
		return
	}
	e.Str(*s)
}

func encodeCoffee(e *jx.Encoder, c *catalog.Coffee, withTags bool) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("description")
	e.Str(c.Description)
	e.FieldStart("price")
	encodeMoney(e, c.Price)
	e.FieldStart("imageUrl")
	e.Str(c.ImageURL)
	if withTags {
		e.FieldStart("tags")
		e.ArrStart()
		for _, t := range c.Tags {
			e.ObjStart()
			e.FieldStart("id")
			e.Str(t.ID)
			e.FieldStart("name")
			e.Str(t.Name)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.FieldStart("createdAt")
	encodeTime(e, c.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, c.UpdatedAt)
	e.ObjEnd()
}

func encodeCoffees(e *jx.Encoder, coffees []catalog.Coffee) {
	e.ArrStart()
	for i := range coffees {
		encodeCoffee(e, &coffees[i], true)
	}
	e.ArrEnd()
}

func encodeSearchResult(e *jx.Encoder, r *search.Result) {
	e.ObjStart()
	e.FieldStart("data")
	encodeCoffees(e, r.Items)
	e.FieldStart("pagination")
	e.ObjStart()
	e.FieldStart("total")
	e.Int(r.Pagination.Total)
	e.FieldStart("limit")
	e.Int(r.Pagination.Limit)
	e.FieldStart("offset")
	e.Int(r.Pagination.Offset)
	e.FieldStart("hasMore")
	e.Bool(r.Pagination.HasMore)
	e.ObjEnd()
	e.ObjEnd()
}

func encodeItem(e *jx.Encoder, it *cart.Item) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(it.ID)
	e.FieldStart("cartId")
	e.Str(it.CartID)
	e.FieldStart("coffeeId")
	e.Str(it.CoffeeID)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.FieldStart("unitPrice")
	encodeMoney(e, it.UnitPrice)
	e.FieldStart("subtotal")
	encodeMoney(e, it.Subtotal())
	if it.Coffee != nil {
		e.FieldStart("coffee")
		encodeCoffee(e, it.Coffee, false)
	}
	e.FieldStart("createdAt")
	encodeTime(e, it.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, it.UpdatedAt)
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("userId")
	encodeOptStr(e, c.UserID)
	e.FieldStart("status")
	e.Str(string(c.Status))
	e.FieldStart("paymentStatus")
	e.Str(string(c.PaymentStatus))
	e.FieldStart("items")
	e.ArrStart()
	for i := range c.Items {
		encodeItem(e, &c.Items[i])
	}
	e.ArrEnd()
	e.FieldStart("total")
	encodeMoney(e, c.Total())
	e.FieldStart("createdAt")
	encodeTime(e, c.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, c.UpdatedAt)
	e.FieldStart("completedAt")
	if c.CompletedAt == nil {
		e.Null()
	} else {
		encodeTime(e, *c.CompletedAt)
	}
	e.ObjEnd()
}

func invalidBody() error {
	return apperr.Invalid("body", "malformed JSON")
}

// decodePrice accepts a JSON number or a numeric string.
func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	default:
		return decimal.Decimal{}, apperr.Invalid("price", "must be a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, apperr.Invalid("price", "must be a number")
	}
	return v, nil
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func decodeCreateCoffee(data []byte) (catalog.CreateInput, error) {
	var in catalog.CreateInput
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			in.Name, err = d.Str()
		case "description":
			in.Description, err = d.Str()
		case "price":
			in.Price, err = decodePrice(d)
		case "imageUrl":
			in.ImageURL, err = d.Str()
		case "tags":
			in.Tags, err = decodeStrings(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return in, asInvalid(err)
	}
	return in, nil
}

// decodeCoffeePatch treats absent and null fields as unchanged.
func decodeCoffeePatch(data []byte) (catalog.Patch, error) {
	var p catalog.Patch
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		switch key {
		case "name":
			s, err := d.Str()
			p.Name = &s
			return err
		case "description":
			s, err := d.Str()
			p.Description = &s
			return err
		case "price":
			v, err := decodePrice(d)
			p.Price = &v
			return err
		case "imageUrl":
			s, err := d.Str()
			p.ImageURL = &s
			return err
		case "tags":
			tags, err := decodeStrings(d)
			p.Tags = tags
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return p, asInvalid(err)
	}
	return p, nil
}

type createCartRequest struct {
	UserID *string
}

func decodeCreateCart(data []byte) (createCartRequest, error) {
	var req createCartRequest
	if len(data) == 0 {
		return req, nil
	}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "userId" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		s, err := d.Str()
		req.UserID = &s
		return err
	})
	if err != nil {
		return req, asInvalid(err)
	}
	return req, nil
}

type addItemRequest struct {
	CoffeeID string
	Quantity int
}

func decodeAddItem(data []byte) (addItemRequest, error) {
	var req addItemRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "coffeeId":
			req.CoffeeID, err = d.Str()
		case "quantity":
			req.Quantity, err = decodeQuantity(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return req, asInvalid(err)
	}
	if req.CoffeeID == "" {
		return req, apperr.Invalid("coffeeId", "is required")
	}
	return req, nil
}

func decodeUpdateItem(data []byte) (int, error) {
	quantity := 0
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		quantity, err = decodeQuantity(d)
		return err
	})
	if err != nil {
		return 0, asInvalid(err)
	}
	return quantity, nil
}

func decodeQuantity(d *jx.Decoder) (int, error) {
	if d.Next() != jx.Number {
		return 0, apperr.Invalid("quantity", "must be an integer")
	}
	q, err := d.Int()
	if err != nil {
		return 0, apperr.Invalid("quantity", "must be an integer")
	}
	return q, nil
}

// asInvalid keeps classified field errors and reports anything else as a
// malformed body.
func asInvalid(err error) error {
	var inv *apperr.InvalidArgumentError
	if errors.As(err, &inv) {
		return inv
	}
	return invalidBody()
}
