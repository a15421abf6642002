// Copyright 2025 Poiesic Systems
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


// Package queue provides an asynchronous, priority-tiered write queue with
// per-tier retry policies.
//
// Callers enqueue raw key/value puts and deletes and return immediately;
// three scheduling loops drain the tiers into a durable sink. Critical
// items dispatch as soon as they arrive, normal items batch on a short
// fixed interval, and low items run in small batches only when the queue
// is otherwise idle. Failed attempts retry with exponential backoff up to
// a per-tier ceiling, after which the item is reported failed and dropped.
//
// When the queue exceeds its capacity, the oldest low-priority items are
// shed first; critical and normal items are never shed. All outcomes are
// observable through events registered with Notify.
package queue
