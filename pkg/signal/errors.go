/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package signal

import (
	"errors"

	"github.com/srediag/plugin-signal/pkg/serializer"
	"github.com/srediag/plugin-signal/pkg/shm"
)

var (
	// ErrClosed is returned by every operation on a closed signal, subscription or factory.
	ErrClosed = errors.New("signal: closed")
	// ErrTimeout is returned by ReceiveTimeout when no Send arrived in time.
	ErrTimeout = errors.New("signal: receive timed out")
	// ErrDecode wraps payloads that were read but could not be deserialized.
	ErrDecode = errors.New("signal: decode failed")

	ErrInvalidName          = shm.ErrInvalidName
	ErrSegmentNotFound      = shm.ErrSegmentNotFound
	ErrCorruptSegment       = shm.ErrCorruptSegment
	ErrPayloadTooLarge      = shm.ErrPayloadTooLarge
	ErrPlatformNotSupported = shm.ErrPlatformNotSupported
	ErrUnsupportedType      = serializer.ErrUnsupportedType
	ErrInvalidUTF8          = serializer.ErrInvalidUTF8
)
