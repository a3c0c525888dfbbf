package reward

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a parsed condition expression. Conditions are a restricted
// grammar over named numeric fields:
//
//	expr    := or
//	or      := and ("||" and)*
//	and     := cmp ("&&" cmp)*
//	cmp     := sum (("<" | "<=" | ">" | ">=" | "==" | "!=") sum)?
//	sum     := term (("+" | "-") term)*
//	term    := unary (("*" | "/") unary)*
//	unary   := "!" unary | "-" unary | primary
//	primary := number | identifier | "(" expr ")"
//
// There is no function call, no assignment, and no access to anything
// outside the evaluation environment: a condition can never execute code.
type Expr struct {
	root node
}

// Parse compiles a condition expression.
func Parse(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, fmt.Errorf("unexpected token %q", p.peek().text)
	}
	return &Expr{root: root}, nil
}

// EvalBool evaluates the expression against env. Any evaluation error
// (unknown field, type mismatch, division by zero) yields false: rules
// fail closed.
func (e *Expr) EvalBool(env map[string]float64) bool {
	v, err := e.root.eval(env)
	if err != nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		return false
	}
	return b
}

// --- AST ---

type node interface {
	eval(env map[string]float64) (interface{}, error)
}

type numberNode float64

func (n numberNode) eval(map[string]float64) (interface{}, error) {
	return float64(n), nil
}

type fieldNode string

func (n fieldNode) eval(env map[string]float64) (interface{}, error) {
	v, ok := env[string(n)]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", string(n))
	}
	return v, nil
}

type unaryNode struct {
	op    string
	child node
}

func (n *unaryNode) eval(env map[string]float64) (interface{}, error) {
	v, err := n.child.eval(env)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "!":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("! requires a boolean operand")
		}
		return !b, nil
	case "-":
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("- requires a numeric operand")
		}
		return -f, nil
	}
	return nil, fmt.Errorf("unknown unary operator %q", n.op)
}

type binaryNode struct {
	op          string
	left, right node
}

func (n *binaryNode) eval(env map[string]float64) (interface{}, error) {
	lv, err := n.left.eval(env)
	if err != nil {
		return nil, err
	}

	// Logical operators short-circuit on booleans.
	if n.op == "&&" || n.op == "||" {
		lb, ok := lv.(bool)
		if !ok {
			return nil, fmt.Errorf("%s requires boolean operands", n.op)
		}
		if n.op == "&&" && !lb {
			return false, nil
		}
		if n.op == "||" && lb {
			return true, nil
		}
		rv, err := n.right.eval(env)
		if err != nil {
			return nil, err
		}
		rb, ok := rv.(bool)
		if !ok {
			return nil, fmt.Errorf("%s requires boolean operands", n.op)
		}
		return rb, nil
	}

	rv, err := n.right.eval(env)
	if err != nil {
		return nil, err
	}

	lf, lok := lv.(float64)
	rf, rok := rv.(float64)
	if !lok || !rok {
		return nil, fmt.Errorf("%s requires numeric operands", n.op)
	}

	switch n.op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "<":
		return lf < rf, nil
	case "<=":
		return lf <= rf, nil
	case ">":
		return lf > rf, nil
	case ">=":
		return lf >= rf, nil
	case "==":
		return lf == rf, nil
	case "!=":
		return lf != rf, nil
	}
	return nil, fmt.Errorf("unknown operator %q", n.op)
}

// --- Lexer ---

type token struct {
	kind string // "num", "ident", "op"
	text string
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case unicode.IsDigit(c) || c == '.':
			j := i
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			text := src[i:j]
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, fmt.Errorf("bad number %q", text)
			}
			toks = append(toks, token{kind: "num", text: text})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_') {
				j++
			}
			toks = append(toks, token{kind: "ident", text: src[i:j]})
			i = j
		default:
			matched := false
			for _, op := range []string{"&&", "||", "<=", ">=", "==", "!="} {
				if strings.HasPrefix(src[i:], op) {
					toks = append(toks, token{kind: "op", text: op})
					i += 2
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			switch c {
			case '+', '-', '*', '/', '<', '>', '!', '(', ')':
				toks = append(toks, token{kind: "op", text: string(c)})
				i++
			default:
				return nil, fmt.Errorf("unexpected character %q", c)
			}
		}
	}
	return toks, nil
}

// --- Parser ---

type parser struct {
	toks []token
	pos  int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.toks)
}

func (p *parser) peek() token {
	if p.eof() {
		return token{}
	}
	return p.toks[p.pos]
}

func (p *parser) accept(text string) bool {
	if !p.eof() && p.toks[p.pos].kind == "op" && p.toks[p.pos].text == text {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.accept("&&") {
		right, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseCmp() (node, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	for _, op := range []string{"<=", ">=", "==", "!=", "<", ">"} {
		if p.accept(op) {
			right, err := p.parseSum()
			if err != nil {
				return nil, err
			}
			return &binaryNode{op: op, left: left, right: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseSum() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.accept("+"):
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: "+", left: left, right: right}
		case p.accept("-"):
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: "-", left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.accept("*"):
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: "*", left: left, right: right}
		case p.accept("/"):
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: "/", left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.accept("!") {
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "!", child: child}, nil
	}
	if p.accept("-") {
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "-", child: child}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.eof() {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	tok := p.toks[p.pos]
	switch tok.kind {
	case "num":
		p.pos++
		f, _ := strconv.ParseFloat(tok.text, 64)
		return numberNode(f), nil
	case "ident":
		p.pos++
		return fieldNode(tok.text), nil
	case "op":
		if tok.text == "(" {
			p.pos++
			inner, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if !p.accept(")") {
				return nil, fmt.Errorf("missing closing parenthesis")
			}
			return inner, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %q", tok.text)
}
