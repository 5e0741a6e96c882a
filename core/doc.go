/* Copyright 2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package core implements the concept execution engine.
//
// A Concept is a named entity type whose properties, actions,
// behaviours, and triggers are all described in data.  The Engine
// keeps track of which instance ids belong to which concepts, a
// Property reads and writes its per-instance values through backing
// stores, a Trigger turns bus events into concept-scoped events, and
// a Behaviour runs an action Chain whenever one of its triggers
// fires.
//
// An instance of a concept is nothing but an opaque id.  All of an
// instance's state lives in whatever stores back its properties, so
// "creating" an instance just means registering its id and telling
// the stores about it.
//
// Nothing in this package is global.  An Engine owns its registries
// (instances, types, primitive actions, trigger kinds), so tests and
// hosts can run several isolated engines in one process.
package core
