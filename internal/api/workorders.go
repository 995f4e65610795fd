// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"encoding/json"
	"time"

	"github.com/craftquality/craftengine/internal/obs"
	"github.com/craftquality/craftengine/internal/store"
)

// persistWorkOrder encodes value and appends it to the work-order store
// keyed by sceneID. Failure is non-fatal to the RPC that produced value
// (§6: the work-order store gives no read-your-writes guarantee and is not
// on the critical path of returning a result to the caller).
func persistWorkOrder(s store.WorkOrderStore, sceneID, kind string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Put(store.WorkOrderRecord{
		SceneID:   sceneID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UnixMilli(),
	})
}

func obsLogWorkOrderFailure(sceneID string, err error) {
	obs.Logger().Warn("work order persistence failed, continuing", "scene_id", sceneID, "error", err)
}
