package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakmart/fulfillment/internal/domain/order"
	"github.com/oakmart/fulfillment/internal/domain/payment"
	"github.com/oakmart/fulfillment/internal/domain/product"
	"github.com/oakmart/fulfillment/internal/domain/shipment"
	"github.com/oakmart/fulfillment/internal/fulfillment"
)

// Monetary amounts travel as JSON strings to keep exact decimal values out of
// float64 territory.

func decodeCheckout(body []byte) (fulfillment.CheckoutRequest, error) {
	var req fulfillment.CheckoutRequest
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "userId":
			return decodeUUID(d, &req.UserID)
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var line fulfillment.LineRequest
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "productId":
						return decodeUUID(d, &line.ProductID)
					case "quantity":
						n, err := d.Int()
						line.Quantity = n
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, line)
				return nil
			})
		case "couponCode":
			s, err := d.Str()
			req.CouponCode = s
			return err
		case "currency":
			s, err := d.Str()
			req.Currency = s
			return err
		case "shipping":
			return decodeDecimal(d, &req.Shipping)
		case "tax":
			return decodeDecimal(d, &req.Tax)
		case "shippingAddressId":
			return decodeUUIDPtr(d, &req.ShippingAddressID)
		case "billingAddressId":
			return decodeUUIDPtr(d, &req.BillingAddressID)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return fulfillment.CheckoutRequest{}, err
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	return req, nil
}

func decodeUUID(d *jx.Decoder, dst *uuid.UUID) error {
	s, err := d.Str()
	if err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return errors.Wrapf(err, "invalid uuid %q", s)
	}
	*dst = id
	return nil
}

func decodeUUIDPtr(d *jx.Decoder, dst **uuid.UUID) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	var id uuid.UUID
	if err := decodeUUID(d, &id); err != nil {
		return err
	}
	*dst = &id
	return nil
}

func decodeDecimal(d *jx.Decoder, dst *decimal.Decimal) error {
	s, err := d.Str()
	if err != nil {
		return err
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return errors.Wrapf(err, "invalid amount %q", s)
	}
	*dst = v
	return nil
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeOrder(e *jx.Encoder, ord *order.Order, items []order.Item) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(ord.ID.String())
	e.FieldStart("userId")
	e.Str(ord.UserID.String())
	e.FieldStart("status")
	e.Str(string(ord.Status))
	e.FieldStart("subtotal")
	e.Str(ord.Subtotal.StringFixed(2))
	e.FieldStart("shipping")
	e.Str(ord.Shipping.StringFixed(2))
	e.FieldStart("tax")
	e.Str(ord.Tax.StringFixed(2))
	e.FieldStart("discount")
	e.Str(ord.Discount.StringFixed(2))
	e.FieldStart("total")
	e.Str(ord.Total.StringFixed(2))
	e.FieldStart("currency")
	e.Str(ord.Currency)
	if ord.CouponID != nil {
		e.FieldStart("couponId")
		e.Str(ord.CouponID.String())
	}
	if items != nil {
		e.FieldStart("items")
		e.ArrStart()
		for i := range items {
			encodeOrderItem(e, &items[i])
		}
		e.ArrEnd()
	}
	e.FieldStart("createdAt")
	e.Str(ord.CreatedAt.Format(time.RFC3339))
	e.ObjEnd()
}

func encodeOrderItem(e *jx.Encoder, item *order.Item) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(item.ID.String())
	e.FieldStart("productId")
	e.Str(item.ProductID.String())
	e.FieldStart("sku")
	e.Str(item.SKU)
	e.FieldStart("name")
	e.Str(item.Name)
	e.FieldStart("unitPrice")
	e.Str(item.UnitPrice.StringFixed(2))
	e.FieldStart("quantity")
	e.Int(item.Quantity)
	e.FieldStart("lineTotal")
	e.Str(item.LineTotal.StringFixed(2))
	e.ObjEnd()
}

func encodePayment(e *jx.Encoder, p *payment.Payment) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID.String())
	e.FieldStart("orderId")
	e.Str(p.OrderID.String())
	e.FieldStart("status")
	e.Str(string(p.Status))
	e.FieldStart("amount")
	e.Str(p.Amount.StringFixed(2))
	e.FieldStart("currency")
	e.Str(p.Currency)
	if p.ProviderChargeID != "" {
		e.FieldStart("providerChargeId")
		e.Str(p.ProviderChargeID)
	}
	e.FieldStart("createdAt")
	e.Str(p.CreatedAt.Format(time.RFC3339))
	e.ObjEnd()
}

func encodeShipments(e *jx.Encoder, shipments []shipment.Shipment) {
	e.ObjStart()
	e.FieldStart("shipments")
	e.ArrStart()
	for i := range shipments {
		s := &shipments[i]
		e.ObjStart()
		e.FieldStart("id")
		e.Str(s.ID.String())
		e.FieldStart("orderId")
		e.Str(s.OrderID.String())
		e.FieldStart("warehouseId")
		e.Str(s.WarehouseID.String())
		e.FieldStart("status")
		e.Str(string(s.Status))
		if s.TrackingRef != "" {
			e.FieldStart("trackingRef")
			e.Str(s.TrackingRef)
		}
		e.FieldStart("createdAt")
		e.Str(s.CreatedAt.Format(time.RFC3339))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeSummary(e *jx.Encoder, s *order.Summary) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(s.OrderID.String())
	e.FieldStart("userId")
	e.Str(s.UserID.String())
	e.FieldStart("status")
	e.Str(string(s.Status))
	e.FieldStart("subtotal")
	e.Str(s.Subtotal.StringFixed(2))
	e.FieldStart("shipping")
	e.Str(s.Shipping.StringFixed(2))
	e.FieldStart("tax")
	e.Str(s.Tax.StringFixed(2))
	e.FieldStart("discount")
	e.Str(s.Discount.StringFixed(2))
	e.FieldStart("total")
	e.Str(s.Total.StringFixed(2))
	e.FieldStart("currency")
	e.Str(s.Currency)
	e.FieldStart("itemCount")
	e.Int(s.ItemCount)
	e.FieldStart("unitCount")
	e.Int(s.UnitCount)
	e.FieldStart("createdAt")
	e.Str(s.CreatedAt.Format(time.RFC3339))
	e.ObjEnd()
}

func encodeProducts(e *jx.Encoder, products []product.Product) {
	e.ArrStart()
	for i := range products {
		p := &products[i]
		e.ObjStart()
		e.FieldStart("id")
		e.Str(p.ID.String())
		e.FieldStart("sku")
		e.Str(p.SKU)
		e.FieldStart("name")
		e.Str(p.Name)
		e.FieldStart("price")
		e.Str(p.Price.StringFixed(2))
		e.FieldStart("active")
		e.Bool(p.Active)
		e.ObjEnd()
	}
	e.ArrEnd()
}
