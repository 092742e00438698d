package authztest

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

const defaultPageSize = 100

func (b *Backend) token() string {
	return "r" + strconv.FormatInt(b.revision, 10)
}

func (b *Backend) sortedLocked() []transport.Relationship {
	keys := slices.Sorted(maps.Keys(b.relationships))
	out := make([]transport.Relationship, 0, len(keys))
	for _, k := range keys {
		out = append(out, b.relationships[k])
	}
	return out
}

// evaluator 在一份关系快照上评估权限
type evaluator struct {
	rels        []transport.Relationship
	permissions map[string]map[string][]string
}

func (b *Backend) evaluator(extra []transport.Relationship) *evaluator {
	b.mu.Lock()
	defer b.mu.Unlock()
	perms := make(map[string]map[string][]string, len(b.permissions))
	for k, v := range b.permissions {
		perms[k] = maps.Clone(v)
	}
	return &evaluator{rels: append(b.sortedLocked(), extra...), permissions: perms}
}

func (e *evaluator) relationsFor(resourceType, permission string) []string {
	if rels, ok := e.permissions[resourceType][permission]; ok {
		return rels
	}
	return []string{permission}
}

func (e *evaluator) check(sub transport.SubjectRef, perm string, res transport.ObjectRef, depth int) (bool, string) {
	if depth > maxDepth {
		return false, "max depth exceeded"
	}
	for _, rel := range e.relationsFor(res.Type, perm) {
		for _, r := range e.rels {
			if r.Resource != res || r.Relation != rel {
				continue
			}
			if r.Subject == sub {
				return true, "direct " + r.String()
			}
			if r.Subject.Relation != "" {
				if ok, _ := e.check(sub, r.Subject.Relation, r.Subject.Object, depth+1); ok {
					return true, "via " + r.Subject.String()
				}
			}
		}
	}
	return false, "no relationship grants " + perm
}

func (b *Backend) check(req *transport.CheckRequest, extra []transport.Relationship) (*transport.CheckResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	allowed, reason := b.evaluator(extra).check(req.Subject, req.Permission, req.Resource, 0)
	b.mu.Lock()
	token := b.token()
	b.mu.Unlock()
	return &transport.CheckResponse{Allowed: allowed, Reason: reason, CheckedAt: token}, nil
}

func (b *Backend) checkBatch(req *transport.CheckBatchRequest) (*transport.CheckBatchWire, error) {
	out := &transport.CheckBatchWire{Results: make([]transport.IndexedCheck, 0, len(req.Items))}
	for i := range req.Items {
		resp, err := b.check(&req.Items[i], nil)
		if err != nil {
			return nil, xerrors.Wrapf(err, "item %d", i)
		}
		out.Results = append(out.Results, transport.IndexedCheck{Index: i, CheckResponse: *resp})
	}
	if b.shuffled() {
		slices.Reverse(out.Results)
	}
	return out, nil
}

func (b *Backend) shuffled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shuffle
}

func validRelationship(r transport.Relationship) bool {
	return r.Resource.Type != "" && r.Resource.ID != "" && r.Relation != "" &&
		r.Subject.Object.Type != "" && r.Subject.Object.ID != ""
}

func (b *Backend) write(req *transport.WriteRequest) (*transport.WriteResponse, error) {
	if len(req.Relationships) == 0 {
		return nil, xerrors.Newf(xerrors.KindInvalidArgument, "no relationships to write")
	}
	for _, r := range req.Relationships {
		if !validRelationship(r) {
			return nil, xerrors.Newf(xerrors.KindInvalidArgument, "incomplete relationship %q", r.String())
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range req.Relationships {
		b.relationships[r.String()] = r
	}
	b.revision++
	return &transport.WriteResponse{ConsistencyToken: b.token()}, nil
}

func (b *Backend) writeBatch(req *transport.WriteBatchRequest) (*transport.WriteBatchWire, error) {
	out := &transport.WriteBatchWire{Results: make([]transport.IndexedWrite, 0, len(req.Writes))}
	for i := range req.Writes {
		resp, err := b.write(&req.Writes[i])
		if err != nil {
			return nil, xerrors.Wrapf(err, "write %d", i)
		}
		out.Results = append(out.Results, transport.IndexedWrite{Index: i, WriteResponse: *resp})
	}
	if b.shuffled() {
		slices.Reverse(out.Results)
	}
	return out, nil
}

func (b *Backend) delete(req *transport.DeleteRequest) (*transport.DeleteResponse, error) {
	if req.Filter == (transport.RelationshipFilter{}) {
		return nil, xerrors.Newf(xerrors.KindInvalidArgument, "delete requires a non-empty filter")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for k, r := range b.relationships {
		if req.Filter.Matches(r) {
			delete(b.relationships, k)
			n++
		}
	}
	b.revision++
	return &transport.DeleteResponse{Deleted: n, ConsistencyToken: b.token()}, nil
}

func paginate[T any](items []T, page transport.Page) ([]T, string, error) {
	offset := 0
	if page.Cursor != "" {
		n, err := strconv.Atoi(page.Cursor)
		if err != nil || n < 0 || n > len(items) {
			return nil, "", xerrors.Newf(xerrors.KindInvalidArgument, "invalid cursor %q", page.Cursor)
		}
		offset = n
	}
	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	end := min(offset+limit, len(items))
	next := ""
	if end < len(items) {
		next = strconv.Itoa(end)
	}
	return items[offset:end], next, nil
}

func (b *Backend) listRelationships(req *transport.ListRelationshipsRequest) (*transport.ListRelationshipsResponse, error) {
	var matched []transport.Relationship
	for _, r := range b.Relationships() {
		if req.Filter.Matches(r) {
			matched = append(matched, r)
		}
	}
	items, next, err := paginate(matched, req.Page)
	if err != nil {
		return nil, err
	}
	return &transport.ListRelationshipsResponse{Items: items, NextCursor: next}, nil
}

func (b *Backend) listResources(req *transport.ListResourcesRequest) (*transport.ListResourcesResponse, error) {
	if req.ResourceType == "" || req.Permission == "" || req.Subject.Object.IsZero() {
		return nil, xerrors.Newf(xerrors.KindInvalidArgument, "list resources requires resource_type, permission and subject")
	}
	ev := b.evaluator(nil)
	seen := make(map[transport.ObjectRef]bool)
	var matched []transport.ObjectRef
	for _, r := range ev.rels {
		if r.Resource.Type != req.ResourceType || seen[r.Resource] {
			continue
		}
		seen[r.Resource] = true
		if ok, _ := ev.check(req.Subject, req.Permission, r.Resource, 0); ok {
			matched = append(matched, r.Resource)
		}
	}
	items, next, err := paginate(matched, req.Page)
	if err != nil {
		return nil, err
	}
	return &transport.ListResourcesResponse{Items: items, NextCursor: next}, nil
}

func (b *Backend) listSubjects(req *transport.ListSubjectsRequest) (*transport.ListSubjectsResponse, error) {
	if req.Resource.IsZero() || req.Permission == "" || req.SubjectType == "" {
		return nil, xerrors.Newf(xerrors.KindInvalidArgument, "list subjects requires resource, permission and subject_type")
	}
	ev := b.evaluator(nil)
	seen := make(map[transport.SubjectRef]bool)
	var candidates []transport.SubjectRef
	for _, r := range ev.rels {
		s := transport.SubjectRef{Object: r.Subject.Object}
		if s.Object.Type != req.SubjectType || seen[s] {
			continue
		}
		seen[s] = true
		candidates = append(candidates, s)
	}
	slices.SortFunc(candidates, func(a, b transport.SubjectRef) int { return strings.Compare(a.String(), b.String()) })

	var matched []transport.SubjectRef
	for _, s := range candidates {
		if ok, _ := ev.check(s, req.Permission, req.Resource, 0); ok {
			matched = append(matched, s)
		}
	}
	items, next, err := paginate(matched, req.Page)
	if err != nil {
		return nil, err
	}
	return &transport.ListSubjectsResponse{Items: items, NextCursor: next}, nil
}
