// Copyright 2025 Dataflix Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

// Dict maps external identifiers to zero-based contiguous matrix indices.
// Indices are assigned in first-seen order, so a dictionary built from the
// same input is always identical.
type Dict struct {
	si map[int64]int32
	is []int64
}

func NewDict() *Dict {
	return &Dict{si: map[int64]int32{}, is: []int64{}}
}

func (d *Dict) Count() int32 {
	return int32(len(d.is))
}

// Add returns the index of an identifier, assigning the next free index on
// first sight.
func (d *Dict) Add(id int64) int32 {
	if index, ok := d.si[id]; ok {
		return index
	}
	index := int32(len(d.is))
	d.si[id] = index
	d.is = append(d.is, id)
	return index
}

// Index returns the index of an identifier, or -1 if it was never seen.
func (d *Dict) Index(id int64) int32 {
	if index, ok := d.si[id]; ok {
		return index
	}
	return -1
}

// Id returns the identifier at an index.
func (d *Dict) Id(index int32) (int64, bool) {
	if index < 0 || index >= int32(len(d.is)) {
		return 0, false
	}
	return d.is[index], true
}

// Ids returns all identifiers in index order.
func (d *Dict) Ids() []int64 {
	return d.is
}
