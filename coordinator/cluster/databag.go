// Copyright 2024 Canonical, Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cluster

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/canonical/loki-coordinator/coordinator/roles"
)

var ErrDataValidation = errors.New("relation databag validation failed")

// builtinKeys are injected by the relation transport and are not part of the
// worker payload schema.
var builtinKeys = map[string]bool{
	"ingress-address": true,
	"private-address": true,
	"egress-subnets":  true,
}

// decode unmarshals a databag into out. Every databag value is expected to
// be a JSON document; the whole bag is therefore re-assembled into a single
// object before decoding.
func (d Databag) decode(out any) error {
	fields := make(map[string]json.RawMessage, len(d))
	for k, v := range d {
		if builtinKeys[k] {
			continue
		}
		if !json.Valid([]byte(v)) {
			return errors.Wrapf(ErrDataValidation, "key %q is not valid json", k)
		}
		fields[k] = json.RawMessage(v)
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return errors.Wrap(ErrDataValidation, err.Error())
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(ErrDataValidation, err.Error())
	}
	return nil
}

// encode is the inverse of decode: each struct field becomes one databag
// entry whose value is the field serialized as JSON.
func encode(in any) (Databag, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	bag := make(Databag, len(fields))
	for k, v := range fields {
		bag[k] = string(v)
	}
	return bag, nil
}

func (d Databag) appData() (AppData, error) {
	var data AppData
	if err := d.decode(&data); err != nil {
		return AppData{}, err
	}
	if len(data.Roles) == 0 {
		return AppData{}, errors.Wrap(ErrDataValidation, "no roles declared")
	}
	for _, r := range data.Roles {
		if !roles.IsValid(r) {
			return AppData{}, errors.Wrapf(ErrDataValidation, "unknown role %q", r)
		}
	}
	return data, nil
}

func (d Databag) unitData() (UnitData, error) {
	var data UnitData
	if err := d.decode(&data); err != nil {
		return UnitData{}, err
	}
	if data.Address == "" {
		return UnitData{}, errors.Wrap(ErrDataValidation, "no address published")
	}
	return data, nil
}
