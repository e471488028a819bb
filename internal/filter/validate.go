package filter

// Limits bounds what Validate and Lower accept. Zero fields disable the
// corresponding check.
type Limits struct {
	MaxInValues     int // largest accepted $in/$nin operand
	MaxConjunctions int // largest DNF Lower will produce
}

// DefaultLimits returns the limits used when no configuration is supplied.
func DefaultLimits() Limits {
	return Limits{
		MaxInValues:     100,
		MaxConjunctions: 64,
	}
}

// identityOperators are the only operators accepted on _id.
var identityOperators = map[Operator]bool{
	OpEq:     true,
	OpNe:     true,
	OpIn:     true,
	OpNin:    true,
	OpExists: true,
}

// Validate checks a fully built tree. It runs the identity rules over the
// whole tree before any per-operator check, so a filter that breaks both
// reports the identity error.
func Validate(root *LogicalExpression, limits Limits) error {
	if root == nil {
		return nil
	}
	if n := countIdentity(root); n > 1 {
		return ruleError(ErrMultipleIdentity, IdentityPath, "found %d comparisons on %s, at most one is allowed", n, IdentityPath)
	}
	if err := checkIdentityUnderOr(root); err != nil {
		return err
	}
	return validateNode(root, limits)
}

func countIdentity(l *LogicalExpression) int {
	n := 0
	for _, c := range l.Comparisons {
		if c.IsIdentity() {
			n++
		}
	}
	for _, child := range l.Children {
		n += countIdentity(child)
	}
	return n
}

func checkIdentityUnderOr(l *LogicalExpression) error {
	if l.Op == Or {
		for _, c := range l.Comparisons {
			if c.IsIdentity() {
				return ruleError(ErrIdentityUnderOr, IdentityPath, "%s cannot be compared inside $or", IdentityPath)
			}
		}
	}
	for _, child := range l.Children {
		if err := checkIdentityUnderOr(child); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(l *LogicalExpression, limits Limits) error {
	for _, c := range l.Comparisons {
		if len(c.Operations) == 0 {
			return structuralError(ErrInvalidStructure, c.Path, "no operators given")
		}
		for _, op := range c.Operations {
			if err := validateOperation(c, op, limits); err != nil {
				return err
			}
		}
	}
	for _, child := range l.Children {
		if err := validateNode(child, limits); err != nil {
			return err
		}
	}
	return nil
}

func validateOperation(c *ComparisonExpression, op Operation, limits Limits) error {
	path := c.Path
	identity := c.IsIdentity()
	if identity && !identityOperators[op.Operator()] {
		return validationError(ErrIdentityOperator, path, op.Operator(), "operator not supported on %s", IdentityPath)
	}

	switch o := op.(type) {
	case *Compare:
		if o.Op.IsRange() && o.Value.Kind() != KindNumber && o.Value.Kind() != KindDate {
			return validationError(ErrInvalidOperand, path, o.Op, "operand must be a number or date, got %s", o.Value.Kind())
		}
		if identity {
			return checkIdentityValue(path, o.Op, o.Value)
		}

	case *In:
		if limits.MaxInValues > 0 && len(o.Values) > limits.MaxInValues {
			return validationError(ErrInTooLarge, path, OpIn, "operand has %d values, maximum is %d", len(o.Values), limits.MaxInValues)
		}
		if identity {
			for _, v := range o.Values {
				if err := checkIdentityValue(path, OpIn, v); err != nil {
					return err
				}
			}
		}

	case *NotIn:
		if limits.MaxInValues > 0 && len(o.Values) > limits.MaxInValues {
			return validationError(ErrInTooLarge, path, OpNin, "operand has %d values, maximum is %d", len(o.Values), limits.MaxInValues)
		}
		if identity {
			for _, v := range o.Values {
				if err := checkIdentityValue(path, OpNin, v); err != nil {
					return err
				}
			}
		}

	case *Exists:
		if !o.Want {
			return validationError(ErrExistsInvalid, path, OpExists, "only true is supported")
		}

	case *All:
		if len(o.Values) == 0 {
			return validationError(ErrAllEmpty, path, OpAll, "operand must contain at least one value")
		}

	case *Size:
		if o.N < 0 {
			return validationError(ErrSizeInvalid, path, OpSize, "operand must not be negative, got %d", o.N)
		}

	default:
		return structuralError(ErrUnknownOperator, path, "unsupported operation %T", op)
	}
	return nil
}

func checkIdentityValue(path string, op Operator, v Value) error {
	if !v.IsScalar() {
		return validationError(ErrInvalidOperand, path, op, "%s operand must be a scalar, got %s", IdentityPath, v.Kind())
	}
	return nil
}
