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

const (
	// RatingWeight is the weight of the explicit rating signal in the interaction score.
	RatingWeight = 0.7
	// LikedWeight is the weight of the implicit like signal in the interaction score.
	LikedWeight = 0.3
)

// Interaction is one row of the interaction table produced by the upstream
// transformation layer. There is at most one row per (user, item) pair.
type Interaction struct {
	UserId  int64
	ItemId  int64
	Watched bool
	Rating  float32
	Liked   bool
}

// Score combines the explicit rating and the implicit like signal into the
// scalar used as the factorization target. Absent signals contribute zero, so
// the score is always in [0, 0.7*5+0.3].
func (i Interaction) Score() float32 {
	score := RatingWeight * i.Rating
	if i.Liked {
		score += LikedWeight
	}
	return score
}
