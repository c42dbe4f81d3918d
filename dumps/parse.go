package dumps

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/reusee/stacktester/tuples"
)

var ErrSyntax = errors.New("dump syntax error")

const (
	generatingHeader = "Generating "
	threadHeader     = "Thread at prefix "
)

// Parse reads a printed test. Instructions appearing before any thread header
// belong to a thread under defaultPrefix.
func Parse(r io.Reader, defaultPrefix []byte) (*Dump, error) {
	dump := new(Dump)
	current := -1

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		// headers are not indented
		if line[0] != ' ' && line[0] != '\t' {
			switch {

			case strings.HasPrefix(trimmed, generatingHeader):
				name := strings.TrimPrefix(trimmed, generatingHeader)
				name = strings.TrimSpace(strings.TrimSuffix(name, "..."))
				dump.Name = name

			case strings.HasPrefix(trimmed, threadHeader):
				rest := strings.TrimSuffix(strings.TrimPrefix(trimmed, threadHeader), ":")
				value, remain, err := parseLiteral(strings.TrimSpace(rest))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNumber, err)
				}
				prefix, ok := value.([]byte)
				if !ok || strings.TrimSpace(remain) != "" {
					return nil, fmt.Errorf("line %d: %w: bad thread prefix %q", lineNumber, ErrSyntax, rest)
				}
				dump.Threads = append(dump.Threads, Thread{
					Prefix: prefix,
				})
				current = len(dump.Threads) - 1

			}
			continue
		}

		inst, err := ParseInstruction(trimmed)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		if current < 0 {
			dump.Threads = append(dump.Threads, Thread{
				Prefix: defaultPrefix,
			})
			current = len(dump.Threads) - 1
		}
		dump.Threads[current].Instructions = append(dump.Threads[current].Instructions, inst)
	}
	if err := scanner.Err(); err != nil {
		return nil, wrap(err)
	}

	return dump, nil
}

// ParseInstruction parses `<n>. '<OPCODE>' <literal>` with an optional literal.
func ParseInstruction(line string) (tuples.Tuple, error) {
	number, rest, ok := strings.Cut(strings.TrimSpace(line), ".")
	if !ok {
		return nil, fmt.Errorf("%w: missing instruction number in %q", ErrSyntax, line)
	}
	if _, err := strconv.Atoi(number); err != nil {
		return nil, fmt.Errorf("%w: bad instruction number %q", ErrSyntax, number)
	}

	rest = strings.TrimSpace(rest)
	op, rest, err := parseLiteral(rest)
	if err != nil {
		return nil, err
	}
	name, ok := op.(string)
	if !ok {
		return nil, fmt.Errorf("%w: op name must be a text literal in %q", ErrSyntax, line)
	}

	ret := tuples.Tuple{name}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return ret, nil
	}
	arg, remain, err := parseLiteral(rest)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(remain) != "" {
		return nil, fmt.Errorf("%w: trailing %q", ErrSyntax, remain)
	}
	return append(ret, arg), nil
}

// parseLiteral reads one literal at the start of s: a signed integer, None, or a quoted
// string. b-prefixed strings are bytes, others text.
func parseLiteral(s string) (value any, rest string, err error) {
	if s == "" {
		return nil, "", fmt.Errorf("%w: expecting literal", ErrSyntax)
	}

	if strings.HasPrefix(s, "None") {
		return nil, s[len("None"):], nil
	}

	switch c := s[0]; {

	case c == '-' || c == '+' || c >= '0' && c <= '9':
		end := 1
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		value, err := parseInt(s[:end])
		if err != nil {
			return nil, "", err
		}
		return value, s[end:], nil

	case c == 'b' || c == 'B':
		bs, rest, err := parseQuoted(s[1:])
		if err != nil {
			return nil, "", err
		}
		return bs, rest, nil

	case c == 'u' || c == 'U':
		bs, rest, err := parseQuoted(s[1:])
		if err != nil {
			return nil, "", err
		}
		return string(bs), rest, nil

	case c == '\'' || c == '"':
		bs, rest, err := parseQuoted(s)
		if err != nil {
			return nil, "", err
		}
		return string(bs), rest, nil

	}

	return nil, "", fmt.Errorf("%w: unexpected %q", ErrSyntax, s)
}

func parseInt(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad integer %q", ErrSyntax, s)
	}
	return b, nil
}

// parseQuoted decodes a quoted string with escapes \0 \xHH \uHHHH \t \r \n \b \f \\ \' \".
func parseQuoted(s string) ([]byte, string, error) {
	if s == "" || s[0] != '\'' && s[0] != '"' {
		return nil, "", fmt.Errorf("%w: expecting quote in %q", ErrSyntax, s)
	}
	quote := s[0]
	ret := []byte{}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == quote {
			return ret, s[i+1:], nil
		}
		if c != '\\' {
			ret = append(ret, c)
			continue
		}

		i++
		if i >= len(s) {
			break
		}
		switch s[i] {
		case '0':
			ret = append(ret, 0)
		case 't':
			ret = append(ret, '\t')
		case 'r':
			ret = append(ret, '\r')
		case 'n':
			ret = append(ret, '\n')
		case 'b':
			ret = append(ret, '\b')
		case 'f':
			ret = append(ret, '\f')
		case '\\', '\'', '"':
			ret = append(ret, s[i])
		case 'x':
			if i+2 >= len(s) {
				return nil, "", fmt.Errorf("%w: short \\x escape", ErrSyntax)
			}
			b, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return nil, "", fmt.Errorf("%w: bad \\x escape %q", ErrSyntax, s[i+1:i+3])
			}
			ret = append(ret, byte(b))
			i += 2
		case 'u':
			if i+4 >= len(s) {
				return nil, "", fmt.Errorf("%w: short \\u escape", ErrSyntax)
			}
			r, err := strconv.ParseUint(s[i+1:i+5], 16, 16)
			if err != nil {
				return nil, "", fmt.Errorf("%w: bad \\u escape %q", ErrSyntax, s[i+1:i+5])
			}
			ret = utf8.AppendRune(ret, rune(r))
			i += 4
		default:
			return nil, "", fmt.Errorf("%w: unknown escape \\%c", ErrSyntax, s[i])
		}
	}
	return nil, "", fmt.Errorf("%w: unterminated string", ErrSyntax)
}
