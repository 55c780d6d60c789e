// Copyright 2025 Cloudbase Solutions SRL
//
//    Licensed under the Apache License, Version 2.0 (the "License"); you may
//    not use this file except in compliance with the License. You may obtain
//    a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
//    WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
//    License for the specific language governing permissions and limitations
//    under the License.

package locking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

var (
	locker    Locker
	lockerMux sync.Mutex
)

// RegisterLocker installs the process-wide Locker. Call once at startup.
func RegisterLocker(l Locker) error {
	lockerMux.Lock()
	defer lockerMux.Unlock()
	if locker != nil {
		return fmt.Errorf("locker already registered")
	}
	locker = l
	return nil
}

func TryLock(key, identifier string) bool {
	if locker == nil {
		panic("no locker is registered")
	}
	ok := locker.TryLock(key, identifier)
	slog.Debug("try lock", "key", key, "identifier", identifier, "locked", ok)
	return ok
}

func Lock(key, identifier string) {
	if locker == nil {
		panic("no locker is registered")
	}
	slog.Debug("acquiring lock", "key", key, "identifier", identifier)
	locker.Lock(key, identifier)
}

func LockWithContext(ctx context.Context, key, identifier string) error {
	if locker == nil {
		panic("no locker is registered")
	}
	return locker.LockWithContext(ctx, key, identifier)
}

func Unlock(key string, remove bool) {
	if locker == nil {
		panic("no locker is registered")
	}
	slog.Debug("unlock", "key", key, "remove", remove)
	locker.Unlock(key, remove)
}

func LockedBy(key string) (string, bool) {
	if locker == nil {
		panic("no locker is registered")
	}
	return locker.LockedBy(key)
}

func Delete(key string) {
	if locker == nil {
		panic("no locker is registered")
	}
	locker.Delete(key)
}
