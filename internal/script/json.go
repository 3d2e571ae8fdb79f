/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// MarshalJSON encodes void and null as null, octets as base64 strings and
// the non-finite reals as the strings "NaN", "Infinity" and "-Infinity".
// Dictionary keys keep their insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindVoid, KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.num != 0))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.num, 10))
	case KindReal:
		if math.IsNaN(v.real) || math.IsInf(v.real, 0) {
			buf.WriteString(strconv.Quote(formatReal(v.real)))
			return nil
		}
		buf.WriteString(strconv.FormatFloat(v.real, 'g', -1, 64))
	case KindString:
		b, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindOctet:
		buf.WriteString(strconv.Quote(base64.StdEncoding.EncodeToString(v.oct)))
	case KindDict:
		buf.WriteByte('{')
		for i, k := range v.dict.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			val, _ := v.dict.Get(k)
			if err := val.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr.Items() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("script: cannot encode value of kind %s", v.kind)
	}
	return nil
}

// UnmarshalJSON decodes a JSON document back into a value tree. Objects keep
// their key order; numbers without a fraction or exponent become integers.
// The encoding is lossy: octets and non-finite reals come back as strings and
// void comes back as null.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeValue(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("script: trailing data after JSON value")
	}
	*v = out
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return IntValue(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("script: bad number %q: %w", t.String(), err)
		}
		return RealValue(f), nil
	case json.Delim:
		switch t {
		case '{':
			d := NewDict()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("script: object key is %T", kt)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				d.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return DictValue(d), nil
		case '[':
			a := NewArray()
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				a.Append(val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ArrayValue(a), nil
		}
	}
	return Value{}, fmt.Errorf("script: unexpected JSON token %v", tok)
}
