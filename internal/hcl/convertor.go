package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/modplan/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// isExprDefined reports whether an optional attribute was written in the
// source. gohcl fills omitted optional expressions with a zero-width
// placeholder, so a nil check alone is not enough.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	rng := expr.Range()
	return rng.End.Byte > rng.Start.Byte
}

// evalStatic evaluates an attribute without variables or functions.
// Descriptors are static records; any reference is a descriptor error.
func evalStatic(ctx context.Context, expr hcl.Expression, attr string) (cty.Value, bool, error) {
	if !isExprDefined(expr) {
		return cty.NilVal, false, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, false, fmt.Errorf("attribute %q: %s", attr, diags.Error())
	}
	if val.IsNull() {
		ctxlog.FromContext(ctx).Debug("Attribute evaluated to null, treating as absent.", "attribute", attr)
		return cty.NilVal, false, nil
	}
	if !val.IsWhollyKnown() {
		return cty.NilVal, false, fmt.Errorf("attribute %q must be a static value", attr)
	}
	return val, true, nil
}

// decodeInto converts val to the cty type implied by target and binds it.
func decodeInto(val cty.Value, target any, attr string) error {
	ty, err := gocty.ImpliedType(target)
	if err != nil {
		return fmt.Errorf("attribute %q: %w", attr, err)
	}
	converted, err := convert.Convert(val, ty)
	if err != nil {
		return fmt.Errorf("attribute %q: cannot convert %s to %s: %w", attr, val.Type().FriendlyName(), ty.FriendlyName(), err)
	}
	if err := gocty.FromCtyValue(converted, target); err != nil {
		return fmt.Errorf("attribute %q: %w", attr, err)
	}
	return nil
}

// decodeString reads a string attribute. ok is false when it was omitted.
func decodeString(ctx context.Context, expr hcl.Expression, attr string) (s string, ok bool, err error) {
	val, ok, err := evalStatic(ctx, expr, attr)
	if err != nil || !ok {
		return "", false, err
	}
	if err := decodeInto(val, &s, attr); err != nil {
		return "", false, err
	}
	return s, true, nil
}

// decodeStringList reads a list-of-strings attribute, keeping source order.
func decodeStringList(ctx context.Context, expr hcl.Expression, attr string) (list []string, ok bool, err error) {
	val, ok, err := evalStatic(ctx, expr, attr)
	if err != nil || !ok {
		return nil, false, err
	}
	if !val.Type().IsListType() && !val.Type().IsTupleType() && !val.Type().IsSetType() {
		return nil, false, fmt.Errorf("attribute %q must be a list of strings, got %s", attr, val.Type().FriendlyName())
	}
	if val.Type().IsSetType() {
		return nil, false, fmt.Errorf("attribute %q must be an ordered list, got %s", attr, val.Type().FriendlyName())
	}
	if val.LengthInt() == 0 {
		return []string{}, true, nil
	}
	if err := decodeInto(val, &list, attr); err != nil {
		return nil, false, err
	}
	return list, true, nil
}
