package domain

import "fmt"

// PaymentType identifies a channel integration variant. TypeCode groups
// variants into a channel family; SubTypeCode is the exact integration and
// the key used for tenant config lookup.
type PaymentType string

const (
	PaymentTypeAppleIap PaymentType = "APPLE_IAP"
	PaymentTypeWxSdk    PaymentType = "WX_SDK"
	PaymentTypeZfbSdk   PaymentType = "ZFB_SDK"
	PaymentTypeWxH5     PaymentType = "WX_H5"
	PaymentTypeZfbH5    PaymentType = "ZFB_H5"
	PaymentTypeWxJs     PaymentType = "WX_JS"
)

var paymentTypeCodes = map[PaymentType]struct {
	typeCode    int32
	subTypeCode int32
}{
	PaymentTypeAppleIap: {1, 1},
	PaymentTypeWxSdk:    {2, 2},
	PaymentTypeZfbSdk:   {3, 3},
	PaymentTypeWxH5:     {5, 5},
	PaymentTypeZfbH5:    {6, 6},
	PaymentTypeWxJs:     {16, 16},
}

func ParsePaymentType(value string) (PaymentType, error) {
	pt := PaymentType(value)
	if _, ok := paymentTypeCodes[pt]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentType, value)
	}
	return pt, nil
}

// PaymentTypeFromSubType resolves the fine-grained integration code back to
// its payment type, e.g. when loading rows persisted by code.
func PaymentTypeFromSubType(subType int32) (PaymentType, error) {
	for pt, codes := range paymentTypeCodes {
		if codes.subTypeCode == subType {
			return pt, nil
		}
	}
	return "", fmt.Errorf("%w: sub_type=%d", ErrInvalidPaymentType, subType)
}

func (p PaymentType) TypeCode() int32 {
	return paymentTypeCodes[p].typeCode
}

func (p PaymentType) SubTypeCode() int32 {
	return paymentTypeCodes[p].subTypeCode
}

func (p PaymentType) String() string {
	return string(p)
}
