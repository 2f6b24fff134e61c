package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Fingerprint identifica o conteúdo normalizado de um payload.
type Fingerprint string

// FingerprintOf calcula o SHA-256 do JSON canônico do payload.
//
// O payload é serializado, decodificado de volta para valores genéricos e
// serializado de novo: encoding/json ordena as chaves de objetos, então a
// ordem dos campos não altera o resultado. Números passam pela forma decimal
// mínima e exata (2, 2.0 e 2e0 são o mesmo valor; inteiros grandes não perdem
// precisão).
func FingerprintOf(payload any) (Fingerprint, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("fingerprint: marshal payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("fingerprint: normalize payload: %w", err)
	}
	if generic, err = canonicalize(generic); err != nil {
		return "", fmt.Errorf("fingerprint: normalize payload: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("fingerprint: marshal canonical payload: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return Fingerprint(hex.EncodeToString(sum[:])), nil
}

func canonicalize(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		return canonicalNumber(x)
	case map[string]any:
		for k, e := range x {
			c, err := canonicalize(e)
			if err != nil {
				return nil, err
			}
			x[k] = c
		}
		return x, nil
	case []any:
		for i, e := range x {
			c, err := canonicalize(e)
			if err != nil {
				return nil, err
			}
			x[i] = c
		}
		return x, nil
	default:
		return v, nil
	}
}

// maxCanonicalExponent limita o custo de expandir notação científica.
// Acima disso o número fica com o texto original.
const maxCanonicalExponent = 1000

// canonicalNumber reescreve n na forma decimal exata mais curta:
// "2.0" e "2e0" viram "2", "1.50" e "15e-1" viram "1.5".
func canonicalNumber(n json.Number) (json.Number, error) {
	s := string(n)
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		exp, err := strconv.Atoi(s[i+1:])
		if err != nil || exp > maxCanonicalExponent || exp < -maxCanonicalExponent {
			return n, nil
		}
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return "", fmt.Errorf("invalid number %q", s)
	}
	if r.IsInt() {
		return json.Number(r.Num().String()), nil
	}
	// o denominador de um decimal só tem fatores 2 e 5, então
	// max(potência de 2, potência de 5) dígitos expandem sem arredondar
	out := r.FloatString(decimalDigits(r.Denom()))
	return json.Number(strings.TrimRight(out, "0")), nil
}

func decimalDigits(den *big.Int) int {
	count := func(p int64) int {
		q := new(big.Int).Set(den)
		div, rem := big.NewInt(p), new(big.Int)
		n := 0
		for {
			quo, _ := new(big.Int).QuoRem(q, div, rem)
			if rem.Sign() != 0 {
				return n
			}
			q = quo
			n++
		}
	}
	return max(count(2), count(5))
}
