package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mhayashi-dev/prodtrack/internal/editlock"
	"github.com/mhayashi-dev/prodtrack/internal/pages"
	"github.com/mhayashi-dev/prodtrack/internal/query"
	"github.com/mhayashi-dev/prodtrack/internal/remap"
)

// mutationFault is the in-band failure envelope for create/update/delete.
// Mutations report faults as a result payload so the frontend handles them
// on the normal response path instead of the transport error path.
type mutationFault struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func fault(err error) mutationFault {
	return mutationFault{Error: true, Message: err.Error()}
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case "find":
		return s.find(ctx, params)
	case "get_entities":
		return s.getEntities(ctx, params)
	case "get_entity":
		return s.getEntity(ctx, params)
	case "create_entity":
		return s.createEntity(ctx, params)
	case "update_entity":
		return s.updateEntity(ctx, params)
	case "delete_entity":
		return s.deleteEntity(ctx, params)
	case "fetch_project_page":
		return s.fetchProjectPage(ctx, params)
	case "fetch_distribute_page":
		return s.pages.FetchDistributePage(ctx)
	case "fetch_basic_data":
		return s.fetchBasicData(ctx, params)
	case "fetch_assignment_page":
		return s.fetchAssignmentPage(ctx, params)
	case "fetch_assignment_tasks":
		return s.fetchAssignmentTasks(ctx, params)
	case "fetch_assignment_workloads":
		return s.fetchAssignmentWorkloads(ctx, params)
	case "init_load":
		return s.initLoad(ctx, params)
	case "acquire_edit_lock":
		return s.lockCall(ctx, params, s.locks.Acquire)
	case "heartbeat_edit_lock":
		return s.lockCall(ctx, params, s.locks.Heartbeat)
	case "release_edit_lock":
		return s.lockCall(ctx, params, s.locks.Release)
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

func decodeParams(params json.RawMessage, into any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, into); err != nil {
		return fmt.Errorf("decoding params: %w", err)
	}
	return nil
}

func (s *Server) find(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		EntityType     string   `json:"entity_type"`
		Filters        any      `json:"filters"`
		Fields         []string `json:"fields"`
		Order          any      `json:"order"`
		FilterOperator string   `json:"filter_operator"`
		Limit          int      `json:"limit"`
		Page           int      `json:"page"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	filters, err := query.ParseFilters(p.Filters)
	if err != nil {
		return nil, err
	}
	order, err := query.ParseOrder(p.Order)
	if err != nil {
		return nil, err
	}
	records, err := s.engine.Find(ctx, p.EntityType, filters, &query.FindOptions{
		Fields:         p.Fields,
		Order:          order,
		FilterOperator: p.FilterOperator,
		Limit:          p.Limit,
		Page:           p.Page,
	})
	if err != nil {
		return nil, err
	}
	return query.FormatList(records), nil
}

func (s *Server) getEntities(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		EntityType string `json:"entity_type"`
		Filters    any    `json:"filters"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	filters, err := query.ParseFilters(p.Filters)
	if err != nil {
		return nil, err
	}
	return s.pages.Entities(ctx, p.EntityType, filters)
}

func (s *Server) getEntity(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		EntityType string `json:"entity_type"`
		ID         int64  `json:"id"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.pages.Entity(ctx, p.EntityType, p.ID)
}

func (s *Server) createEntity(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		Data map[string]any `json:"data"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	entityType, data, err := splitTypedData(p.Data)
	if err != nil {
		return fault(err), nil
	}
	record, err := s.engine.Create(ctx, entityType, data, pages.FieldSet(entityType))
	if err != nil {
		return fault(err), nil
	}
	return query.FormatRecord(remap.ApplyOne(record)), nil
}

func (s *Server) updateEntity(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		ID   int64          `json:"id"`
		Data map[string]any `json:"data"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	entityType, data, err := splitTypedData(p.Data)
	if err != nil {
		return fault(err), nil
	}
	if _, err := s.engine.Update(ctx, entityType, p.ID, data); err != nil {
		return fault(err), nil
	}
	record, err := s.pages.Entity(ctx, entityType, p.ID)
	if err != nil {
		return fault(err), nil
	}
	return record, nil
}

func (s *Server) deleteEntity(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		EntityType string `json:"entity_type"`
		ID         int64  `json:"id"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	deleted, err := s.engine.Delete(ctx, p.EntityType, p.ID)
	if err != nil {
		return fault(err), nil
	}
	return map[string]any{"success": deleted}, nil
}

// splitTypedData pops the "type" tag out of a mutation payload, leaving
// only attribute fields.
func splitTypedData(data map[string]any) (string, map[string]any, error) {
	if data == nil {
		return "", nil, errors.New("missing data payload")
	}
	entityType, ok := data["type"].(string)
	if !ok || entityType == "" {
		return "", nil, errors.New("data payload missing entity type")
	}
	fields := make(map[string]any, len(data)-1)
	for k, v := range data {
		if k == "type" {
			continue
		}
		fields[k] = v
	}
	return entityType, fields, nil
}

func (s *Server) fetchProjectPage(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		ProjectID int64 `json:"project_id"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.pages.FetchProjectPage(ctx, p.ProjectID)
}

func (s *Server) fetchBasicData(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		CurrentUserID int64 `json:"current_user_id"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.pages.FetchBasicData(ctx, p.CurrentUserID)
}

type window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (s *Server) fetchAssignmentPage(ctx context.Context, params json.RawMessage) (any, error) {
	var p window
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.pages.FetchAssignmentPage(ctx, p.Start, p.End)
}

func (s *Server) fetchAssignmentTasks(ctx context.Context, params json.RawMessage) (any, error) {
	var p window
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.pages.FetchAssignmentTasks(ctx, p.Start, p.End)
}

func (s *Server) fetchAssignmentWorkloads(ctx context.Context, params json.RawMessage) (any, error) {
	var p window
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.pages.FetchAssignmentWorkloads(ctx, p.Start, p.End)
}

func (s *Server) initLoad(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		ProjectID     int64   `json:"project_id"`
		PersonList    []int64 `json:"person_list"`
		CurrentUserID int64   `json:"current_user_id"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.pages.InitLoad(ctx, p.ProjectID, p.PersonList, p.CurrentUserID)
}

func (s *Server) lockCall(ctx context.Context, params json.RawMessage, call func(context.Context, int64, int64) (editlock.Status, error)) (any, error) {
	var p struct {
		SubprojectID int64 `json:"subproject_id"`
		UserID       int64 `json:"user_id"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return call(ctx, p.SubprojectID, p.UserID)
}
