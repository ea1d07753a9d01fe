package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-engine/internal/domain/cart"
	"github.com/xenking/promo-engine/internal/domain/pricing"
	"github.com/xenking/promo-engine/internal/domain/promotion"
)

const maxBodyBytes = 1 << 20

// decodeRequest parses the shared request body: the cart, optional customer
// override, optional evaluation time and optional promo code.
func decodeRequest(r *http.Request) (pricing.Request, string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return pricing.Request{}, "", errors.Wrap(err, "read body")
	}

	var (
		req  pricing.Request
		code string
	)
	d := jx.DecodeBytes(body)
	err = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "customerId":
			v, err := d.Str()
			if err != nil {
				return err
			}
			req.CustomerID = v
			return nil
		case "code":
			v, err := d.Str()
			if err != nil {
				return err
			}
			code = v
			return nil
		case "at":
			v, err := d.Str()
			if err != nil {
				return err
			}
			at, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return errors.Wrap(err, "at")
			}
			req.At = at
			return nil
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "customer":
			cc, err := decodeCustomer(d)
			if err != nil {
				return err
			}
			req.Customer = cc
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return pricing.Request{}, "", errors.Wrap(err, "decode request")
	}
	return req, code, nil
}

func decodeItem(d *jx.Decoder) (cart.Item, error) {
	var item cart.Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			v, err := d.Str()
			if err != nil {
				return err
			}
			item.ProductID = v
			return nil
		case "name":
			v, err := d.Str()
			if err != nil {
				return err
			}
			item.Name = v
			return nil
		case "quantity":
			v, err := d.Int()
			if err != nil {
				return err
			}
			item.Quantity = v
			return nil
		case "unitPrice":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "unitPrice")
			}
			item.UnitPrice = v
			return nil
		case "familyId":
			v, err := d.Str()
			if err != nil {
				return err
			}
			item.FamilyID = v
			return nil
		case "skuPoints":
			v, err := d.Int()
			if err != nil {
				return err
			}
			item.SKUPoints = v
			return nil
		default:
			return d.Skip()
		}
	})
	return item, err
}

func decodeCustomer(d *jx.Decoder) (*promotion.CustomerContext, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}

	cc := &promotion.CustomerContext{}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "groupCodes":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				cc.GroupCodes = append(cc.GroupCodes, v)
				return nil
			})
		case "loyaltyLevel":
			v, err := d.Int()
			if err != nil {
				return err
			}
			cc.LoyaltyLevel = v
			return nil
		case "paymentMethod":
			v, err := d.Str()
			if err != nil {
				return err
			}
			cc.PaymentMethod = v
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return cc, nil
}

// decodeDecimal accepts monetary values as JSON numbers or quoted strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(strings.Trim(n.String(), `"`))
}

func encodeResult(res *pricing.Result) []byte {
	var e jx.Encoder
	e.ObjStart()

	e.FieldStart("subtotal")
	encDecimal(&e, res.Subtotal)
	e.FieldStart("total")
	encDecimal(&e, res.Total)
	e.FieldStart("discount")
	encDecimal(&e, res.Discount)
	e.FieldStart("loyaltyPoints")
	e.Int64(res.LoyaltyPoints)

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range res.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("originalPrice")
		encDecimal(&e, it.OriginalPrice)
		e.FieldStart("finalPrice")
		encDecimal(&e, it.FinalPrice)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("applied")
	e.ArrStart()
	for _, a := range res.Applied {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(a.Code)
		if a.Description != "" {
			e.FieldStart("description")
			e.Str(a.Description)
		}
		e.FieldStart("discount")
		encDecimal(&e, a.Discount)
		if a.LoyaltyPoints != 0 {
			e.FieldStart("loyaltyPoints")
			e.Int64(a.LoyaltyPoints)
		}
		e.FieldStart("items")
		encStrings(&e, a.Items)
		e.ObjEnd()
	}
	e.ArrEnd()

	if len(res.Diagnostics) > 0 {
		e.FieldStart("diagnostics")
		e.ArrStart()
		for _, diag := range res.Diagnostics {
			e.ObjStart()
			e.FieldStart("code")
			e.Str(diag.Code)
			e.FieldStart("reason")
			e.Str(diag.Reason)
			e.ObjEnd()
		}
		e.ArrEnd()
	}

	e.ObjEnd()
	return e.Bytes()
}

func encodePromotions(promos []promotion.Promotion) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("promotions")
	e.ArrStart()
	for _, p := range promos {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(p.Code)
		e.FieldStart("name")
		e.Str(p.Name)
		if p.Description != "" {
			e.FieldStart("description")
			e.Str(p.Description)
		}
		e.FieldStart("priority")
		e.Int(p.Priority)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeValidation(code string, valid bool) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(promotion.NormalizeCode(code))
	e.FieldStart("valid")
	e.Bool(valid)
	e.ObjEnd()
	return e.Bytes()
}

func encodeBreakdown(b *pricing.Breakdown) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(b.Code)
	e.FieldStart("eligible")
	e.Bool(b.Eligible)
	if b.TierThreshold != nil {
		e.FieldStart("tierThreshold")
		encDecimal(&e, *b.TierThreshold)
	}
	e.FieldStart("discount")
	encDecimal(&e, b.Discount)
	if b.LoyaltyPoints != 0 {
		e.FieldStart("loyaltyPoints")
		e.Int64(b.LoyaltyPoints)
	}
	e.FieldStart("items")
	encStrings(&e, b.Items)
	e.ObjEnd()
	return e.Bytes()
}

func encDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func encStrings(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}
