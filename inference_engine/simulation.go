package inference_engine

import (
	"context"
	"strings"
	"time"

	"codeguardian/types"
)

// DefaultSimulatedLatency mirrors the artificial delay shown by the dashboard's loader.
const DefaultSimulatedLatency = 1500 * time.Millisecond

type simulationTemplate struct {
	keyword string
	text    string
}

// Checked in order; the first keyword found in the lower-cased prompt wins.
var simulationTemplates = []simulationTemplate{
	{keyword: "security", text: securityTemplate},
	{keyword: "performance", text: performanceTemplate},
	{keyword: "scalability", text: scalabilityTemplate},
	{keyword: "api", text: apiTemplate},
	{keyword: "cloud", text: cloudTemplate},
}

// SimulationClient is the deterministic responder used when no real provider answers.
// It never fails.
type SimulationClient struct {
	latency time.Duration
}

// NewSimulationClient creates a responder that waits latency before answering.
func NewSimulationClient(latency time.Duration) *SimulationClient {
	if latency < 0 {
		latency = 0
	}
	return &SimulationClient{latency: latency}
}

// Respond returns the canned template for the prompt.
func (s *SimulationClient) Respond(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, tpl := range simulationTemplates {
		if strings.Contains(lower, tpl.keyword) {
			return tpl.text
		}
	}
	return generalTemplate
}

// topic reports which template a prompt maps to, "general" when none match.
func (s *SimulationClient) topic(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, tpl := range simulationTemplates {
		if strings.Contains(lower, tpl.keyword) {
			return tpl.keyword
		}
	}
	return "general"
}

// Send satisfies ProviderClient. The wait is the only thing that can be cut short;
// a cancelled context still yields the template.
func (s *SimulationClient) Send(ctx context.Context, prompt string, _ []types.ConversationTurn, _ types.ProviderConfig) (string, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	return s.Respond(prompt), nil
}

var _ ProviderClient = (*SimulationClient)(nil)

const securityTemplate = `Based on my analysis of your code, I've identified several security considerations:

1. **API Security**: Your endpoints should implement proper authentication and authorization. Consider using OAuth 2.0 or JWT for secure API access.

2. **Input Validation**: I noticed potential areas where input validation could be strengthened, particularly in form submissions and API requests.

3. **Data Protection**: Ensure sensitive data is encrypted both at rest and in transit. Use HTTPS for all communications.

4. **Error Handling**: Implement proper error handling that doesn't expose sensitive information in error messages.

5. **Dependency Security**: Keep all libraries and dependencies updated to avoid known vulnerabilities.

I recommend implementing a Web Application Firewall (WAF) and regular security audits to maintain a strong security posture.`

const performanceTemplate = `I've analyzed your code for performance optimizations and have these recommendations:

1. **Resource Bundling**: Consider bundling your JavaScript and CSS files to reduce HTTP requests.

2. **Code Splitting**: Implement code splitting to load only necessary code for each page.

3. **Lazy Loading**: Images and non-critical components should be lazy loaded.

4. **Caching Strategy**: Implement browser caching for static assets with appropriate cache headers.

5. **Minification**: Ensure all production code is minified to reduce file sizes.

6. **Database Queries**: Optimize database queries by adding proper indexes and avoiding N+1 query problems.

Implementing these changes could significantly improve your application's loading time and overall performance.`

const scalabilityTemplate = `For improving scalability of your application, consider these architectural recommendations:

1. **Horizontal Scaling**: Design your application to scale horizontally by adding more instances rather than upgrading existing ones.

2. **Statelessness**: Ensure your application is stateless to facilitate load balancing across multiple servers.

3. **Database Sharding**: Consider implementing database sharding for handling large datasets.

4. **Caching Layer**: Add a distributed caching layer like Redis to reduce database load.

5. **Microservices**: Consider breaking monolithic components into microservices that can scale independently.

6. **Asynchronous Processing**: Move resource-intensive tasks to background jobs using message queues.

These approaches will help your application handle increased load without performance degradation.`

const apiTemplate = `Regarding API design and implementation, here are my recommendations:

1. **RESTful Design**: Follow RESTful principles for intuitive and consistent API design.

2. **Versioning**: Implement API versioning to make future changes without breaking existing clients.

3. **Rate Limiting**: Add rate limiting to prevent abuse and ensure fair usage.

4. **Documentation**: Use OpenAPI/Swagger for comprehensive API documentation.

5. **Authentication**: Implement OAuth 2.0 or JWT for secure authentication.

6. **Response Formats**: Support multiple response formats (JSON, XML) based on client needs.

7. **Error Handling**: Create consistent error responses with appropriate HTTP status codes.

A well-designed API will improve developer experience and application maintainability.`

const cloudTemplate = `For cloud security and deployment, I recommend:

1. **Infrastructure as Code**: Use tools like Terraform or CloudFormation to manage infrastructure.

2. **Zero-Trust Security**: Implement a zero-trust security model for all cloud resources.

3. **Identity Management**: Use robust IAM policies with least privilege principle.

4. **Encryption**: Ensure data encryption both at rest and in transit.

5. **Network Security**: Implement VPCs, security groups, and network ACLs.

6. **Monitoring & Logging**: Set up comprehensive monitoring and centralized logging.

7. **Disaster Recovery**: Implement proper backup and disaster recovery procedures.

8. **Compliance**: Ensure your cloud setup meets relevant compliance requirements (GDPR, HIPAA, etc.).

These practices will help secure your application in cloud environments.`

const generalTemplate = `I've analyzed your code and have the following insights:

1. **Code Structure**: Your application follows a well-organized structure, but some components could benefit from further modularization.

2. **Best Practices**: I noticed several areas where modern development best practices are being followed, particularly in the separation of concerns.

3. **Potential Improvements**:
   - Consider implementing more comprehensive error handling
   - Add unit and integration tests to improve code reliability
   - Optimize resource loading for better performance
   - Enhance security measures for sensitive operations

4. **Architecture**: The current architecture should support your immediate needs, but as the application grows, you might want to consider a more scalable approach.

Feel free to ask more specific questions about any aspect of your code that you'd like me to analyze in greater detail.`
